package docqueue

import (
	"errors"
	"testing"

	"github.com/kellnr/kellnr/pkg/observability"
)

type fakeQueue struct {
	entries []Entry
	deleted []int64
}

func (f *fakeQueue) AddDocQueue(e Entry) (int64, error) {
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, e)
	return e.ID, nil
}

func (f *fakeQueue) GetDocQueue() ([]Entry, error) {
	return f.entries, nil
}

func (f *fakeQueue) DeleteDocQueue(id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeConsumer struct {
	failFor string
	built   []Entry
}

func (f *fakeConsumer) BuildDocs(e Entry) error {
	if e.NormalizedName == f.failFor {
		return errors.New("render failed")
	}
	f.built = append(f.built, e)
	return nil
}

func TestJanitor_DrainOnce(t *testing.T) {
	q := &fakeQueue{entries: []Entry{
		{ID: 1, NormalizedName: "serde", Version: "1.0.0", TarballPath: "/tmp/serde-1.0.0.crate"},
		{ID: 2, NormalizedName: "broken", Version: "0.1.0", TarballPath: "/tmp/broken-0.1.0.crate"},
	}}
	c := &fakeConsumer{failFor: "broken"}
	j := NewJanitor(q, c, observability.NewLogger(observability.ErrorLevel, nil))

	j.drainOnce()

	if len(c.built) != 1 || c.built[0].NormalizedName != "serde" {
		t.Errorf("expected only serde to be built, got %+v", c.built)
	}
	if len(q.deleted) != 1 || q.deleted[0] != 1 {
		t.Errorf("expected only entry 1 to be removed from the queue, got %+v", q.deleted)
	}
}
