// Package version implements the registry's semantic-version type,
// backed by Masterminds/semver for parsing and total ordering.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// VersionError is returned when a candidate version string does not parse
// as a semantic version.
type VersionError struct {
	Input string
	Err   error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

// Version is a parsed, comparable semantic version.
type Version struct {
	raw string
	sv  *semver.Version
}

// Parse parses s as MAJOR.MINOR.PATCH[-PRE][+BUILD].
func Parse(s string) (Version, error) {
	sv, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, &VersionError{Input: s, Err: err}
	}
	return Version{raw: s, sv: sv}, nil
}

// MustParse is FromUnchecked's stricter sibling: it panics on invalid
// input. Use only for compile-time-constant versions.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromUnchecked parses s, falling back to a non-semver-validated wrapper
// if parsing fails. It never errors; callers use it for inputs already
// known-good (e.g. rows read back from the store) where a parse failure
// would indicate store corruption, not a VersionError worth surfacing.
func FromUnchecked(s string) Version {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{raw: s, sv: nil}
	}
	return Version{raw: s, sv: sv}
}

// String returns the version exactly as parsed.
func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other, ordered by semantic-version precedence.
func (v Version) Compare(other Version) int {
	if v.sv != nil && other.sv != nil {
		return v.sv.Compare(other.sv)
	}
	// Fall back to lexicographic comparison for unparseable values
	// (from_unchecked inputs that aren't valid semver, e.g. legacy rows).
	switch {
	case v.raw < other.raw:
		return -1
	case v.raw > other.raw:
		return 1
	default:
		return 0
	}
}

// LessThan reports whether v orders before other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Sortable implements sort.Interface over a []Version.
type Sortable []Version

func (s Sortable) Len() int           { return len(s) }
func (s Sortable) Less(i, j int) bool { return s[i].LessThan(s[j]) }
func (s Sortable) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Max returns the greatest version in vs. Max panics if vs is empty;
// callers at the storage layer always check for the empty-version-list
// case before calling.
func Max(vs []Version) Version {
	if len(vs) == 0 {
		panic("version: Max called on empty slice")
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if v.Compare(max) > 0 {
			max = v
		}
	}
	return max
}
