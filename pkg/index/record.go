// Package index implements the on-wire sparse-index representation of a
// package version and the derived per-package prefetch document served
// to resolvers.
package index

import (
	"bytes"
	"encoding/json"
)

// Dependency is one dependency entry inside an IndexRecord.
type Dependency struct {
	Name               string   `json:"name"`
	VersionReq         string   `json:"req"`
	Features           []string `json:"features,omitempty"`
	Optional           bool     `json:"optional"`
	DefaultFeatures    bool     `json:"default_features"`
	Target             *string  `json:"target,omitempty"`
	Kind               *string  `json:"kind,omitempty"`
	Registry           *string  `json:"registry,omitempty"`
	ExplicitNameInTOML *string  `json:"package,omitempty"`
}

// Record is the on-wire representation of one version inside an index
// document. Field order below is alphabetical by JSON key and is load
// bearing: it is what makes Marshal's output the document's canonical
// form (the spec's "sorted keys within each record").
type Record struct {
	Checksum string                 `json:"cksum"`
	Deps     []Dependency           `json:"deps"`
	Features map[string][]string    `json:"features"`
	Features2 map[string][]string   `json:"features2,omitempty"`
	Links    *string                `json:"links,omitempty"`
	Name     string                 `json:"name"`
	V        int                    `json:"v"`
	Vers     string                 `json:"vers"`
	Yanked   bool                   `json:"yanked"`
}

// DefaultSchemaVersion is used when a record's schema version is
// unspecified.
const DefaultSchemaVersion = 1

// MarshalLine renders r as a single canonical-JSON line (no trailing
// newline), with object keys in the fixed field order above and map keys
// (features/features2) sorted, matching encoding/json's default
// alphabetical map-key ordering.
func (r Record) MarshalLine() ([]byte, error) {
	if r.V == 0 {
		r.V = DefaultSchemaVersion
	}
	if r.Deps == nil {
		r.Deps = []Dependency{}
	}
	if r.Features == nil {
		r.Features = map[string][]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalRecord parses a single index-record JSON line, accepting
// missing optional fields.
func UnmarshalRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	if r.V == 0 {
		r.V = DefaultSchemaVersion
	}
	return r, nil
}
