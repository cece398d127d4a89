package mirror

import (
	"testing"
	"time"

	"github.com/kellnr/kellnr/pkg/index"
)

func fixture(fetchedAt time.Time) *Cached {
	return &Cached{
		Prefetch: index.Prefetch{
			Etag:         "abc123",
			LastModified: "2020-10-07 13:18:00",
		},
		FetchedAt: fetchedAt,
	}
}

func TestCheck_NotFound(t *testing.T) {
	r := Check(nil, "abc123", "2020-10-07 13:18:00", 0, time.Now())
	if r.State != NotFound {
		t.Errorf("expected NotFound, got %s", r.State)
	}
}

func TestCheck_UpToDate(t *testing.T) {
	c := fixture(time.Now())
	r := Check(c, "abc123", "2020-10-07 13:18:00", 0, time.Now())
	if r.State != UpToDate {
		t.Errorf("expected UpToDate, got %s", r.State)
	}
}

func TestCheck_NeedsUpdate_EtagMismatch(t *testing.T) {
	c := fixture(time.Now())
	r := Check(c, "different", "2020-10-07 13:18:00", 0, time.Now())
	if r.State != NeedsUpdate {
		t.Errorf("expected NeedsUpdate, got %s", r.State)
	}
	if r.Prefetch.Etag != "abc123" {
		t.Error("expected returned prefetch to carry the stored document")
	}
}

func TestCheck_NeedsUpdate_MissingValidators(t *testing.T) {
	c := fixture(time.Now())
	r := Check(c, "", "", 0, time.Now())
	if r.State != NeedsUpdate {
		t.Errorf("expected missing validators to never match, got %s", r.State)
	}
}

func TestCheck_TTLCollapse(t *testing.T) {
	fetchedAt := time.Now().Add(-2 * time.Hour)
	c := fixture(fetchedAt)
	r := Check(c, "abc123", "2020-10-07 13:18:00", time.Hour, time.Now())
	if r.State != NeedsUpdate {
		t.Errorf("expected TTL to collapse UpToDate into NeedsUpdate, got %s", r.State)
	}
}

func TestCheck_WithinTTL(t *testing.T) {
	fetchedAt := time.Now().Add(-10 * time.Minute)
	c := fixture(fetchedAt)
	r := Check(c, "abc123", "2020-10-07 13:18:00", time.Hour, time.Now())
	if r.State != UpToDate {
		t.Errorf("expected fresh row within TTL to be UpToDate, got %s", r.State)
	}
}
