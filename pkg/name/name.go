// Package name implements the original and normalized package-name types
// used throughout the registry.
package name

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxLength is the longest accepted original package name.
const MaxLength = 64

// NameError is returned when a candidate original name fails validation.
type NameError struct {
	Input  string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid package name %q: %s", e.Input, e.Reason)
}

// OriginalName is a package name exactly as authored (case and separator
// preserved).
type OriginalName struct {
	value string
}

// NewOriginalName validates s and returns an OriginalName.
//
// Accepted names are non-empty, no longer than MaxLength, start with an
// ASCII letter, and contain only ASCII alphanumerics, '-', and '_'
// thereafter.
func NewOriginalName(s string) (OriginalName, error) {
	if s == "" {
		return OriginalName{}, &NameError{Input: s, Reason: "must not be empty"}
	}
	if len(s) > MaxLength {
		return OriginalName{}, &NameError{Input: s, Reason: fmt.Sprintf("must not exceed %d characters", MaxLength)}
	}
	first := rune(s[0])
	if !unicode.IsLetter(first) || first > unicode.MaxASCII {
		return OriginalName{}, &NameError{Input: s, Reason: "must start with an ASCII letter"}
	}
	for _, r := range s {
		if !isValidChar(r) {
			return OriginalName{}, &NameError{Input: s, Reason: fmt.Sprintf("contains invalid character %q", r)}
		}
	}
	return OriginalName{value: s}, nil
}

// OriginalNameFromUnchecked wraps s without validation. Callers must only
// use this for inputs already known to satisfy NewOriginalName's rules
// (e.g. values read back from the store).
func OriginalNameFromUnchecked(s string) OriginalName {
	return OriginalName{value: s}
}

func isValidChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// String returns the name exactly as authored.
func (n OriginalName) String() string {
	return n.value
}

// Normalize folds the name into its NormalizedName form.
func (n OriginalName) Normalize() NormalizedName {
	folded := strings.ReplaceAll(strings.ToLower(n.value), "-", "_")
	return NormalizedName{value: folded}
}

// NormalizedName is the lowercased, '-'-to-'_'-folded form of a package
// name used for uniqueness and lookups. Folding direction is fixed
// globally: lowercase, then '-' becomes '_'.
type NormalizedName struct {
	value string
}

// NormalizedNameFrom is the total conversion from an already-validated
// OriginalName.
func NormalizedNameFrom(n OriginalName) NormalizedName {
	return n.Normalize()
}

// NormalizedNameFromUnchecked folds s without first validating it as an
// OriginalName. Use only for trusted inputs (tests, values already stored).
func NormalizedNameFromUnchecked(s string) NormalizedName {
	return NormalizedName{value: strings.ReplaceAll(strings.ToLower(s), "-", "_")}
}

// String returns the normalized representation.
func (n NormalizedName) String() string {
	return n.value
}

// Equal reports whether two normalized names are identical.
func (n NormalizedName) Equal(other NormalizedName) bool {
	return n.value == other.value
}
