package index

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// TimestampFormat is the UTC datetime format used for Prefetch.LastModified
// and other externally-serialized timestamps, per the spec's datetime
// convention.
const TimestampFormat = "2006-01-02 15:04:05"

// Prefetch is the pair of an HTTP cache validator (Etag) and the
// per-package sorted index body it validates.
type Prefetch struct {
	Etag         string
	LastModified string
	Body         []byte
}

// VersionedRecord pairs a Record with the timestamp its owning version
// was created at, so Build can derive LastModified.
type VersionedRecord struct {
	Record    Record
	CreatedAt time.Time
}

// Build derives the prefetch body, etag, and last-modified timestamp from
// the current set of stored versions for a package. Records are emitted
// in ascending semantic-version order, one canonical-JSON line per
// version; the caller is responsible for passing records already in that
// order (pkg/storage/postgres sorts by parsed version before calling
// Build, since byte ordering of version strings is not semver order).
//
// The returned etag is a pure function of the records' bytes: identical
// input always yields identical output, and any mutation to any
// version's Record changes it — the purity property the spec calls out
// for publish/yank/unyank/delete/update_docs_link.
func Build(records []VersionedRecord) (Prefetch, error) {
	var body []byte
	var maxCreated time.Time
	for i, vr := range records {
		line, err := vr.Record.MarshalLine()
		if err != nil {
			return Prefetch{}, err
		}
		if i > 0 {
			body = append(body, '\n')
		}
		body = append(body, line...)
		if vr.CreatedAt.After(maxCreated) {
			maxCreated = vr.CreatedAt
		}
	}

	sum := sha256.Sum256(body)
	lastModified := ""
	if !maxCreated.IsZero() {
		lastModified = maxCreated.UTC().Format(TimestampFormat)
	}
	return Prefetch{
		Etag:         hex.EncodeToString(sum[:]),
		LastModified: lastModified,
		Body:         body,
	}, nil
}

// SortByVersion stably sorts records ascending by the caller-supplied
// compare. It parses no versions itself: where records whose Vers field
// does not parse end up is decided entirely by compare.
func SortByVersion(records []VersionedRecord, compare func(a, b Record) int) {
	sort.SliceStable(records, func(i, j int) bool {
		return compare(records[i].Record, records[j].Record) < 0
	})
}
