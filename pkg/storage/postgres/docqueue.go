package postgres

import (
	"context"

	"github.com/kellnr/kellnr/pkg/docqueue"
	"github.com/kellnr/kellnr/pkg/regerr"
)

// AddDocQueue enqueues a documentation build for a newly published
// version, returning the new row's id.
func (s *Store) AddDocQueue(e docqueue.Entry) (int64, error) {
	ctx := context.Background()
	var id int64
	err := s.primary().QueryRowContext(ctx, `
		INSERT INTO doc_queue (normalized_name, version_string, tarball_path)
		VALUES ($1, $2, $3)
		RETURNING id
	`, e.NormalizedName, e.Version, e.TarballPath).Scan(&id)
	if err != nil {
		return 0, regerr.Storage("AddDocQueue", err)
	}
	return id, nil
}

// GetDocQueue returns every queued entry in insertion order.
func (s *Store) GetDocQueue() ([]docqueue.Entry, error) {
	ctx := context.Background()
	rows, err := s.replica().QueryContext(ctx, `
		SELECT id, normalized_name, version_string, tarball_path FROM doc_queue ORDER BY id ASC
	`)
	if err != nil {
		return nil, regerr.Storage("GetDocQueue", err)
	}
	defer rows.Close()

	var entries []docqueue.Entry
	for rows.Next() {
		var e docqueue.Entry
		if err := rows.Scan(&e.ID, &e.NormalizedName, &e.Version, &e.TarballPath); err != nil {
			return nil, regerr.Storage("GetDocQueue", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteDocQueue removes a drained entry.
func (s *Store) DeleteDocQueue(id int64) error {
	ctx := context.Background()
	if _, err := s.primary().ExecContext(ctx, "DELETE FROM doc_queue WHERE id = $1", id); err != nil {
		return regerr.Storage("DeleteDocQueue", err)
	}
	return nil
}

var _ docqueue.Queue = (*Store)(nil)
