package index

import (
	"testing"
	"time"
)

func TestBuild_Purity(t *testing.T) {
	created := time.Date(2020, 10, 7, 13, 18, 0, 0, time.UTC)
	records := []VersionedRecord{
		{Record: Record{Name: "crate", Vers: "1.0.0", Checksum: "a"}, CreatedAt: created},
	}
	p1, err := Build(records)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Build(records)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Etag != p2.Etag {
		t.Error("expected identical input to yield identical etag")
	}
	if p1.LastModified != "2020-10-07 13:18:00" {
		t.Errorf("unexpected last_modified: %s", p1.LastModified)
	}
}

func TestBuild_EtagChangesWithContent(t *testing.T) {
	created := time.Date(2020, 10, 7, 13, 18, 0, 0, time.UTC)
	base := []VersionedRecord{
		{Record: Record{Name: "crate", Vers: "1.0.0", Checksum: "a"}, CreatedAt: created},
	}
	yanked := []VersionedRecord{
		{Record: Record{Name: "crate", Vers: "1.0.0", Checksum: "a", Yanked: true}, CreatedAt: created},
	}
	p1, _ := Build(base)
	p2, _ := Build(yanked)
	if p1.Etag == p2.Etag {
		t.Error("expected yanking a version to change the etag")
	}
}

func TestBuild_Empty(t *testing.T) {
	p, err := Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.LastModified != "" {
		t.Errorf("expected empty last_modified for no versions, got %q", p.LastModified)
	}
}
