// Package auth implements principal (user) records, salted password
// hashing, and opaque session/API-token generation for the registry.
//
// The package only produces and validates credentials; persistence lives
// in pkg/storage/postgres, which stores the values this package computes
// verbatim.
package auth
