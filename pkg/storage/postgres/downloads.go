package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/kellnr/kellnr/pkg/regerr"
)

// IncreaseDownloadCounter bumps a specific version's download count.
// Fails regerr.NotFound if the version doesn't exist.
func (s *Store) IncreaseDownloadCounter(ctx context.Context, normalizedName, versionString string) error {
	res, err := s.primary().ExecContext(ctx, `
		UPDATE versions SET downloads = downloads + 1
		WHERE version_string = $1 AND package_id = (
			SELECT id FROM packages WHERE normalized_name = $2
		)
	`, versionString, normalizedName)
	if err != nil {
		return regerr.Storage("IncreaseDownloadCounter", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return regerr.NotFound("IncreaseDownloadCounter", sql.ErrNoRows)
	}
	return nil
}

// GetTotalDownloads sums downloads across every locally published
// version.
func (s *Store) GetTotalDownloads(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COALESCE(SUM(downloads), 0) FROM versions").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalDownloads", err)
	}
	return total, nil
}

// GetTotalCrateVersions returns the count of published version rows
// across every package, not the count of distinct packages.
func (s *Store) GetTotalCrateVersions(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM versions").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalCrateVersions", err)
	}
	return total, nil
}

// GetTotalUniqueCrates returns the count of distinct published packages.
func (s *Store) GetTotalUniqueCrates(ctx context.Context) (int64, error) {
	var total int64
	if err := s.replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM packages").Scan(&total); err != nil {
		return 0, regerr.Storage("GetTotalUniqueCrates", err)
	}
	return total, nil
}

// GetTopCratesDownloads returns the limit packages with the most total
// downloads, descending by downloads then ascending by name. Packages
// with zero downloads are excluded.
func (s *Store) GetTopCratesDownloads(ctx context.Context, limit int) ([]CrateSummary, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT p.normalized_name, SUM(v.downloads) AS total, MAX(v.created_at)
		FROM packages p
		JOIN versions v ON v.package_id = p.id
		GROUP BY p.id
		HAVING SUM(v.downloads) > 0
		ORDER BY total DESC, p.normalized_name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, regerr.Storage("GetTopCratesDownloads", err)
	}
	defer rows.Close()

	var out []CrateSummary
	for rows.Next() {
		var cs CrateSummary
		if err := rows.Scan(&cs.Name, &cs.TotalDownloads, &cs.LastUpdated); err != nil {
			return nil, regerr.Storage("GetTopCratesDownloads", err)
		}
		max, err := s.GetMaxVersionFromName(ctx, cs.Name)
		if err != nil {
			return nil, err
		}
		cs.MaxVersion = max
		out = append(out, cs)
	}
	return out, nil
}

// GetLastUpdatedCrate returns the normalized name and timestamp of the
// most recently created version across every locally published package.
func (s *Store) GetLastUpdatedCrate(ctx context.Context) (string, time.Time, error) {
	var name string
	var createdAt time.Time
	err := s.replica().QueryRowContext(ctx, `
		SELECT p.normalized_name, v.created_at
		FROM versions v
		JOIN packages p ON p.id = v.package_id
		ORDER BY v.created_at DESC
		LIMIT 1
	`).Scan(&name, &createdAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, regerr.NotFound("GetLastUpdatedCrate", err)
	} else if err != nil {
		return "", time.Time{}, regerr.Storage("GetLastUpdatedCrate", err)
	}
	return name, createdAt, nil
}
