// Package storage holds the seams the registry core depends on but does
// not implement: tarball blob bytes and backend connectivity
// configuration. The transactional data model lives in
// pkg/storage/postgres; this package stays narrow so swapping the blob
// backend never touches that core.
package storage
