package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kellnr/kellnr/pkg/index"
	"github.com/kellnr/kellnr/pkg/mirror"
	"github.com/kellnr/kellnr/pkg/regerr"
)

// AddCratesioPrefetchData upserts the mirror row for normalizedName and
// replaces its version set wholesale. Repeating an identical call is a
// no-op in effect: the replace is idempotent on identical input. The
// upsert and the version-set replace happen in one transaction, so a
// concurrent refresh never observes a half-replaced version set.
func (s *Store) AddCratesioPrefetchData(
	ctx context.Context,
	originalName, normalizedName string,
	records []index.VersionedRecord,
	etag, lastModified string,
	ttl *time.Duration,
	fetchedAt time.Time,
) error {
	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("AddCratesioPrefetchData", err)
	}
	defer tx.Rollback()

	var ttlSeconds sql.NullInt64
	if ttl != nil {
		ttlSeconds = sql.NullInt64{Int64: int64(*ttl / time.Second), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mirror_packages (normalized_name, original_name, etag, last_modified, ttl_seconds, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (normalized_name) DO UPDATE SET
			original_name = EXCLUDED.original_name,
			etag = EXCLUDED.etag,
			last_modified = EXCLUDED.last_modified,
			ttl_seconds = EXCLUDED.ttl_seconds,
			fetched_at = EXCLUDED.fetched_at
	`, normalizedName, originalName, etag, lastModified, ttlSeconds, fetchedAt)
	if err != nil {
		return translateWriteErr("AddCratesioPrefetchData", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM mirror_versions WHERE normalized_name = $1", normalizedName); err != nil {
		return translateWriteErr("AddCratesioPrefetchData", err)
	}

	for _, vr := range records {
		body, err := json.Marshal(vr.Record)
		if err != nil {
			return regerr.Serialization("AddCratesioPrefetchData", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mirror_versions (normalized_name, version_string, record, downloads)
			VALUES ($1, $2, $3, 0)
		`, normalizedName, vr.Record.Vers, body); err != nil {
			return translateWriteErr("AddCratesioPrefetchData", err)
		}
	}

	return tx.Commit()
}

// IsCratesioCacheUpToDate compares the caller's validators (and the TTL
// stored with the cached mirror row, if any) against that row, delegating
// the freshness decision to pkg/mirror.Check.
func (s *Store) IsCratesioCacheUpToDate(ctx context.Context, normalizedName, callerEtag, callerLastModified string, now time.Time) (mirror.Result, error) {
	var etag, lastModified string
	var fetchedAt time.Time
	var ttlSeconds sql.NullInt64

	err := s.replica().QueryRowContext(ctx, `
		SELECT etag, last_modified, fetched_at, ttl_seconds FROM mirror_packages WHERE normalized_name = $1
	`, normalizedName).Scan(&etag, &lastModified, &fetchedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return mirror.Check(nil, callerEtag, callerLastModified, 0, now), nil
	} else if err != nil {
		return mirror.Result{}, regerr.Storage("IsCratesioCacheUpToDate", err)
	}

	body, err := s.mirrorIndexBody(ctx, normalizedName)
	if err != nil {
		return mirror.Result{}, err
	}

	cached := &mirror.Cached{
		Prefetch: index.Prefetch{
			Etag:         etag,
			LastModified: lastModified,
			Body:         body,
		},
		FetchedAt: fetchedAt,
	}

	var ttl time.Duration
	if ttlSeconds.Valid {
		ttl = time.Duration(ttlSeconds.Int64) * time.Second
	}

	return mirror.Check(cached, callerEtag, callerLastModified, ttl, now), nil
}

func (s *Store) mirrorIndexBody(ctx context.Context, normalizedName string) ([]byte, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT record FROM mirror_versions WHERE normalized_name = $1 ORDER BY id
	`, normalizedName)
	if err != nil {
		return nil, regerr.Storage("mirrorIndexBody", err)
	}
	defer rows.Close()

	var body []byte
	first := true
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, regerr.Storage("mirrorIndexBody", err)
		}
		if !first {
			body = append(body, '\n')
		}
		first = false
		body = append(body, raw...)
	}
	return body, nil
}

// GetTotalUniqueCachedCrates returns the count of distinct mirrored
// packages.
func (s *Store) GetTotalUniqueCachedCrates(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM mirror_packages").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalUniqueCachedCrates", err)
	}
	return total, nil
}

// GetTotalCachedCrateVersions returns the count of mirrored version rows
// across every cached package.
func (s *Store) GetTotalCachedCrateVersions(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM mirror_versions").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalCachedCrateVersions", err)
	}
	return total, nil
}

// GetTotalCachedDownloads sums the download counters tracked for mirrored
// versions.
func (s *Store) GetTotalCachedDownloads(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COALESCE(SUM(downloads), 0) FROM mirror_versions").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalCachedDownloads", err)
	}
	return total, nil
}
