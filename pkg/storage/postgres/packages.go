package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kellnr/kellnr/pkg/index"
	"github.com/kellnr/kellnr/pkg/name"
	"github.com/kellnr/kellnr/pkg/regerr"
	"github.com/kellnr/kellnr/pkg/version"
)

func normalize(original string) string {
	return name.NormalizedNameFromUnchecked(original).String()
}

// AddEmptyCrate creates the package row only. Fails regerr.Duplicate if
// the normalized name already exists.
func (s *Store) AddEmptyCrate(ctx context.Context, originalName string, createdAt time.Time) error {
	ctx, span := tracer.Start(ctx, "AddEmptyCrate", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "packages"),
	))
	defer span.End()

	_, err := s.primary().ExecContext(ctx, `
		INSERT INTO packages (original_name, normalized_name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, originalName, normalize(originalName), createdAt)
	if err != nil {
		span.RecordError(err)
		return translateWriteErr("AddEmptyCrate", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// AddCrate publishes a new version, creating the package row (with
// principal as sole owner) if it doesn't yet exist. Fails
// regerr.Forbidden if the package exists and principal isn't an owner,
// regerr.Duplicate if (package, version) already exists. Every mutation
// happens in one transaction; the prefetch cache entry for the package
// is invalidated only after a successful commit.
func (s *Store) AddCrate(ctx context.Context, pm PublishMetadata, checksum string, createdAt time.Time, principalName string) error {
	ctx, span := tracer.Start(ctx, "AddCrate", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "versions"),
		attribute.String("package.name", pm.Name),
		attribute.String("version", pm.Vers),
	))
	defer span.End()

	normalizedName := normalize(pm.Name)

	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("AddCrate", err)
	}
	defer tx.Rollback()

	var packageID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM packages WHERE normalized_name = $1 FOR UPDATE
	`, normalizedName).Scan(&packageID)

	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO packages (original_name, normalized_name, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			RETURNING id
		`, pm.Name, normalizedName, createdAt).Scan(&packageID)
		if err != nil {
			return translateWriteErr("AddCrate", err)
		}

		var principalID int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM principals WHERE name = $1", principalName).Scan(&principalID); err != nil {
			if err == sql.ErrNoRows {
				return regerr.NotFound("AddCrate", err)
			}
			return regerr.Storage("AddCrate", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO package_owners (package_id, principal_id) VALUES ($1, $2)
		`, packageID, principalID); err != nil {
			return translateWriteErr("AddCrate", err)
		}
	case err != nil:
		return regerr.Storage("AddCrate", err)
	default:
		var isOwner bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM package_owners po
				JOIN principals pr ON pr.id = po.principal_id
				WHERE po.package_id = $1 AND pr.name = $2
			)
		`, packageID, principalName).Scan(&isOwner)
		if err != nil {
			return regerr.Storage("AddCrate", err)
		}
		if !isOwner {
			return regerr.Forbidden("AddCrate", nil)
		}
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM versions WHERE package_id = $1 AND version_string = $2)
	`, packageID, pm.Vers).Scan(&exists)
	if err != nil {
		return regerr.Storage("AddCrate", err)
	}
	if exists {
		return regerr.Duplicate("AddCrate", nil)
	}

	var versionID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO versions (
			package_id, version_string, checksum, documentation, readme, license,
			license_file, links, homepage, repository, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, packageID, pm.Vers, checksum, pm.Documentation, pm.Readme, pm.License,
		pm.LicenseFile, pm.Links, pm.Homepage, pm.Repository, pm.Description, createdAt,
	).Scan(&versionID)
	if err != nil {
		return translateWriteErr("AddCrate", err)
	}

	for i, dep := range pm.Deps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (
				version_id, position, name, version_req, features, optional,
				default_features, target, kind, registry, explicit_name_in_toml
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, versionID, i, dep.Name, dep.VersionReq, pq.Array(dep.Features), dep.Optional,
			dep.DefaultFeatures, dep.Target, dep.Kind, dep.Registry, dep.ExplicitNameInTOML,
		); err != nil {
			return translateWriteErr("AddCrate", err)
		}
	}

	for feature, enables := range pm.Features {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO features (version_id, name, enables) VALUES ($1, $2, $3)
		`, versionID, feature, pq.Array(enables)); err != nil {
			return translateWriteErr("AddCrate", err)
		}
	}

	if err := insertTagRows(ctx, tx, "keywords", "keyword", versionID, pm.Keywords); err != nil {
		return err
	}
	if err := insertTagRows(ctx, tx, "categories", "category", versionID, pm.Categories); err != nil {
		return err
	}
	if err := insertTagRows(ctx, tx, "authors", "author", versionID, pm.Authors); err != nil {
		return err
	}
	if err := insertTagRows(ctx, tx, "badges", "badge", versionID, pm.Badges); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return regerr.Storage("AddCrate", err)
	}

	s.cache.Invalidate(ctx, normalizedName)
	span.SetStatus(codes.Ok, "")
	return nil
}

func insertTagRows(ctx context.Context, tx *sql.Tx, table, column string, versionID int64, values []string) error {
	for _, v := range values {
		if _, err := tx.ExecContext(ctx, "INSERT INTO "+table+" (version_id, "+column+") VALUES ($1, $2)", versionID, v); err != nil {
			return translateWriteErr("AddCrate", err)
		}
	}
	return nil
}

// GetCrateID returns the package id for normalizedName, and false if it
// doesn't exist.
func (s *Store) GetCrateID(ctx context.Context, normalizedName string) (int64, bool, error) {
	var id int64
	err := s.replica().QueryRowContext(ctx, "SELECT id FROM packages WHERE normalized_name = $1", normalizedName).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	} else if err != nil {
		return 0, false, regerr.Storage("GetCrateID", err)
	}
	return id, true, nil
}

// CrateVersionExists reports whether packageID has a version row
// versionString.
func (s *Store) CrateVersionExists(ctx context.Context, packageID int64, versionString string) (bool, error) {
	var exists bool
	err := s.replica().QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM versions WHERE package_id = $1 AND version_string = $2)
	`, packageID, versionString).Scan(&exists)
	if err != nil {
		return false, regerr.Storage("CrateVersionExists", err)
	}
	return exists, nil
}

func (s *Store) maxVersion(ctx context.Context, packageID int64) (string, error) {
	rows, err := s.replica().QueryContext(ctx, "SELECT version_string FROM versions WHERE package_id = $1", packageID)
	if err != nil {
		return "", regerr.Storage("GetMaxVersion", err)
	}
	defer rows.Close()

	var versions []version.Version
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", regerr.Storage("GetMaxVersion", err)
		}
		versions = append(versions, version.FromUnchecked(v))
	}
	if len(versions) == 0 {
		return "", regerr.NotFound("GetMaxVersion", sql.ErrNoRows)
	}
	return version.Max(versions).String(), nil
}

// GetMaxVersionFromID returns the highest semantic version for packageID,
// including yanked versions.
func (s *Store) GetMaxVersionFromID(ctx context.Context, packageID int64) (string, error) {
	return s.maxVersion(ctx, packageID)
}

// GetMaxVersionFromName returns the highest semantic version for the
// package with normalizedName, including yanked versions.
func (s *Store) GetMaxVersionFromName(ctx context.Context, normalizedName string) (string, error) {
	id, ok, err := s.GetCrateID(ctx, normalizedName)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", regerr.NotFound("GetMaxVersionFromName", sql.ErrNoRows)
	}
	return s.maxVersion(ctx, id)
}

// GetCrateVersions returns every version string for normalizedName in
// ascending semantic-version order. An unknown package yields an empty
// slice, not an error.
func (s *Store) GetCrateVersions(ctx context.Context, normalizedName string) ([]string, error) {
	id, ok, err := s.GetCrateID(ctx, normalizedName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rows, err := s.replica().QueryContext(ctx, "SELECT version_string FROM versions WHERE package_id = $1", id)
	if err != nil {
		return nil, regerr.Storage("GetCrateVersions", err)
	}
	defer rows.Close()

	var versions []version.Version
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, regerr.Storage("GetCrateVersions", err)
		}
		versions = append(versions, version.FromUnchecked(v))
	}
	sortVersionsAsc(versions)

	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out, nil
}

func sortVersionsAsc(vs []version.Version) {
	sortable := version.Sortable(vs)
	for i := 1; i < len(sortable); i++ {
		for j := i; j > 0 && sortable.Less(j, j-1); j-- {
			sortable.Swap(j, j-1)
		}
	}
}

// GetCrateMetaList returns every stored version row for normalizedName in
// ascending semantic-version order.
func (s *Store) GetCrateMetaList(ctx context.Context, normalizedName string) ([]CrateVersionData, error) {
	id, ok, err := s.GetCrateID(ctx, normalizedName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, regerr.NotFound("GetCrateMetaList", sql.ErrNoRows)
	}

	versions, err := s.loadVersionRows(ctx, id)
	if err != nil {
		return nil, err
	}
	sortCrateVersionsAsc(versions)
	return versions, nil
}

func sortCrateVersionsAsc(vs []CrateVersionData) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && version.FromUnchecked(vs[j].Version).LessThan(version.FromUnchecked(vs[j-1].Version)); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}

// loadVersionRows reads every version row (and its dependency/feature/tag
// children) for packageID, unordered.
func (s *Store) loadVersionRows(ctx context.Context, packageID int64) ([]CrateVersionData, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT id, version_string, checksum, yanked, downloads, documentation,
		       readme, license, license_file, links, homepage, repository,
		       description, created_at
		FROM versions WHERE package_id = $1
	`, packageID)
	if err != nil {
		return nil, regerr.Storage("loadVersionRows", err)
	}
	defer rows.Close()

	type versionRow struct {
		id int64
		cv CrateVersionData
	}
	var versionRows []versionRow
	for rows.Next() {
		var vr versionRow
		if err := rows.Scan(&vr.id, &vr.cv.Version, &vr.cv.Checksum, &vr.cv.Yanked, &vr.cv.Downloads,
			&vr.cv.Documentation, &vr.cv.Readme, &vr.cv.License, &vr.cv.LicenseFile, &vr.cv.Links,
			&vr.cv.Homepage, &vr.cv.Repository, &vr.cv.Description, &vr.cv.CreatedAt); err != nil {
			return nil, regerr.Storage("loadVersionRows", err)
		}
		versionRows = append(versionRows, vr)
	}

	result := make([]CrateVersionData, len(versionRows))
	for i, vr := range versionRows {
		cv := vr.cv
		deps, err := s.loadDependencies(ctx, vr.id)
		if err != nil {
			return nil, err
		}
		cv.Deps = deps

		features, err := s.loadFeatures(ctx, vr.id)
		if err != nil {
			return nil, err
		}
		cv.Features = features

		cv.Keywords, err = s.loadTagRows(ctx, "keywords", "keyword", vr.id)
		if err != nil {
			return nil, err
		}
		cv.Categories, err = s.loadTagRows(ctx, "categories", "category", vr.id)
		if err != nil {
			return nil, err
		}
		cv.Authors, err = s.loadTagRows(ctx, "authors", "author", vr.id)
		if err != nil {
			return nil, err
		}

		result[i] = cv
	}
	return result, nil
}

func (s *Store) loadDependencies(ctx context.Context, versionID int64) ([]index.Dependency, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT name, version_req, features, optional, default_features, target, kind, registry, explicit_name_in_toml
		FROM dependencies WHERE version_id = $1 ORDER BY position
	`, versionID)
	if err != nil {
		return nil, regerr.Storage("loadDependencies", err)
	}
	defer rows.Close()

	var deps []index.Dependency
	for rows.Next() {
		var d index.Dependency
		var features []string
		if err := rows.Scan(&d.Name, &d.VersionReq, pq.Array(&features), &d.Optional, &d.DefaultFeatures,
			&d.Target, &d.Kind, &d.Registry, &d.ExplicitNameInTOML); err != nil {
			return nil, regerr.Storage("loadDependencies", err)
		}
		d.Features = features
		deps = append(deps, d)
	}
	return deps, nil
}

func (s *Store) loadFeatures(ctx context.Context, versionID int64) (map[string][]string, error) {
	rows, err := s.replica().QueryContext(ctx, "SELECT name, enables FROM features WHERE version_id = $1", versionID)
	if err != nil {
		return nil, regerr.Storage("loadFeatures", err)
	}
	defer rows.Close()

	features := map[string][]string{}
	for rows.Next() {
		var name string
		var enables []string
		if err := rows.Scan(&name, pq.Array(&enables)); err != nil {
			return nil, regerr.Storage("loadFeatures", err)
		}
		features[name] = enables
	}
	return features, nil
}

func (s *Store) loadTagRows(ctx context.Context, table, column string, versionID int64) ([]string, error) {
	rows, err := s.replica().QueryContext(ctx, "SELECT "+column+" FROM "+table+" WHERE version_id = $1", versionID)
	if err != nil {
		return nil, regerr.Storage("loadTagRows", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, regerr.Storage("loadTagRows", err)
		}
		values = append(values, v)
	}
	return values, nil
}

// GetCrateData returns the aggregate view of normalizedName: owners, the
// latest version's top-level metadata, and every version in descending
// semantic-version order.
func (s *Store) GetCrateData(ctx context.Context, normalizedName string) (CrateData, error) {
	id, ok, err := s.GetCrateID(ctx, normalizedName)
	if err != nil {
		return CrateData{}, err
	}
	if !ok {
		return CrateData{}, regerr.NotFound("GetCrateData", sql.ErrNoRows)
	}

	versions, err := s.loadVersionRows(ctx, id)
	if err != nil {
		return CrateData{}, err
	}
	if len(versions) == 0 {
		return CrateData{}, regerr.NotFound("GetCrateData", sql.ErrNoRows)
	}
	sortCrateVersionsDesc(versions)

	owners, err := s.GetCrateOwners(ctx, normalizedName)
	if err != nil {
		return CrateData{}, err
	}

	latest := versions[0]
	var lastUpdated time.Time
	for _, v := range versions {
		if v.CreatedAt.After(lastUpdated) {
			lastUpdated = v.CreatedAt
		}
	}

	return CrateData{
		Name:          normalizedName,
		Owners:        owners,
		MaxVersion:    latest.Version,
		LastUpdated:   lastUpdated,
		Authors:       latest.Authors,
		Keywords:      latest.Keywords,
		Categories:    latest.Categories,
		Description:   latest.Description,
		Documentation: latest.Documentation,
		Homepage:      latest.Homepage,
		Readme:        latest.Readme,
		License:       latest.License,
		LicenseFile:   latest.LicenseFile,
		Repository:    latest.Repository,
		Links:         latest.Links,
		Versions:      versions,
	}, nil
}

func sortCrateVersionsDesc(vs []CrateVersionData) {
	sortCrateVersionsAsc(vs)
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}

// GetCrateSummaries returns one row per package, sorted by name ascending.
func (s *Store) GetCrateSummaries(ctx context.Context) ([]CrateSummary, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT p.normalized_name,
		       COALESCE(SUM(v.downloads), 0),
		       MAX(v.created_at)
		FROM packages p
		JOIN versions v ON v.package_id = p.id
		GROUP BY p.id
		ORDER BY p.normalized_name ASC
	`)
	if err != nil {
		return nil, regerr.Storage("GetCrateSummaries", err)
	}
	defer rows.Close()

	var summaries []CrateSummary
	for rows.Next() {
		var name string
		var downloads int64
		var lastUpdated time.Time
		if err := rows.Scan(&name, &downloads, &lastUpdated); err != nil {
			return nil, regerr.Storage("GetCrateSummaries", err)
		}
		max, err := s.GetMaxVersionFromName(ctx, name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, CrateSummary{
			Name: name, MaxVersion: max, TotalDownloads: downloads, LastUpdated: lastUpdated,
		})
	}
	return summaries, nil
}

func (s *Store) overviewQuery(ctx context.Context, where string, args []interface{}, limit, offset int, cacheOnly bool) ([]CrateOverview, error) {
	var query string
	if cacheOnly {
		query = `
			SELECT p.normalized_name, COALESCE(SUM(v.downloads), 0), MAX(p.fetched_at)
			FROM mirror_packages p
			JOIN mirror_versions v ON p.normalized_name = v.normalized_name
		`
	} else {
		query = `
			SELECT p.normalized_name, COALESCE(SUM(v.downloads), 0), MAX(v.created_at)
			FROM packages p
			JOIN versions v ON p.id = v.package_id
		`
	}
	if where != "" {
		query += " WHERE " + where
	}
	query += " GROUP BY p.normalized_name ORDER BY p.normalized_name ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, regerr.Storage("overviewQuery", err)
	}
	defer rows.Close()

	var out []CrateOverview
	for rows.Next() {
		var o CrateOverview
		var downloads sql.NullInt64
		var date sql.NullTime
		if err := rows.Scan(&o.Name, &downloads, &date); err != nil {
			return nil, regerr.Storage("overviewQuery", err)
		}
		o.TotalDownloads = downloads.Int64
		o.Date = date.Time

		max, err := s.maxVersionForOverview(ctx, o.Name, cacheOnly)
		if err != nil {
			return nil, err
		}
		o.Version = max
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) maxVersionForOverview(ctx context.Context, normalizedName string, cacheOnly bool) (string, error) {
	if !cacheOnly {
		return s.GetMaxVersionFromName(ctx, normalizedName)
	}
	rows, err := s.replica().QueryContext(ctx, "SELECT version_string FROM mirror_versions WHERE normalized_name = $1", normalizedName)
	if err != nil {
		return "", regerr.Storage("maxVersionForOverview", err)
	}
	defer rows.Close()

	var versions []version.Version
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", regerr.Storage("maxVersionForOverview", err)
		}
		versions = append(versions, version.FromUnchecked(v))
	}
	if len(versions) == 0 {
		return "", nil
	}
	return version.Max(versions).String(), nil
}

// GetCrateOverviewList returns a page of package overviews sorted by name
// ascending. When cacheOnly is true, results are drawn from the upstream
// mirror tables instead of locally published packages.
func (s *Store) GetCrateOverviewList(ctx context.Context, limit, offset int, cacheOnly bool) ([]CrateOverview, error) {
	return s.overviewQuery(ctx, "", nil, limit, offset, cacheOnly)
}

// SearchInCrateName returns package overviews whose normalized name
// contains query (case-insensitive substring match), sorted by name
// ascending.
func (s *Store) SearchInCrateName(ctx context.Context, query string, cacheOnly bool) ([]CrateOverview, error) {
	nameCol := "p.normalized_name"
	return s.overviewQuery(ctx, nameCol+" ILIKE '%' || $1 || '%'", []interface{}{strings.ToLower(query)}, 0, 0, cacheOnly)
}

// YankCrate marks a version not-to-be-used by new resolutions while
// keeping it downloadable, and invalidates the package's prefetch cache.
func (s *Store) YankCrate(ctx context.Context, normalizedName, versionString string) error {
	return s.setYanked(ctx, normalizedName, versionString, true)
}

// UnyankCrate reverses YankCrate.
func (s *Store) UnyankCrate(ctx context.Context, normalizedName, versionString string) error {
	return s.setYanked(ctx, normalizedName, versionString, false)
}

func (s *Store) setYanked(ctx context.Context, normalizedName, versionString string, yanked bool) error {
	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("setYanked", err)
	}
	defer tx.Rollback()

	var packageID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM packages WHERE normalized_name = $1 FOR UPDATE", normalizedName).Scan(&packageID); err != nil {
		if err == sql.ErrNoRows {
			return regerr.NotFound("setYanked", err)
		}
		return regerr.Storage("setYanked", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET yanked = $1 WHERE package_id = $2 AND version_string = $3
	`, yanked, packageID, versionString)
	if err != nil {
		return translateWriteErr("setYanked", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return regerr.NotFound("setYanked", sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return regerr.Storage("setYanked", err)
	}
	s.cache.Invalidate(ctx, normalizedName)
	return nil
}

// DeleteCrate removes versionString and all of its child rows. If it was
// the package's only version, the package row is removed too.
func (s *Store) DeleteCrate(ctx context.Context, normalizedName, versionString string) error {
	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("DeleteCrate", err)
	}
	defer tx.Rollback()

	var packageID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM packages WHERE normalized_name = $1 FOR UPDATE", normalizedName).Scan(&packageID); err != nil {
		if err == sql.ErrNoRows {
			return regerr.NotFound("DeleteCrate", err)
		}
		return regerr.Storage("DeleteCrate", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM versions WHERE package_id = $1 AND version_string = $2", packageID, versionString)
	if err != nil {
		return translateWriteErr("DeleteCrate", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return regerr.NotFound("DeleteCrate", sql.ErrNoRows)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM versions WHERE package_id = $1", packageID).Scan(&remaining); err != nil {
		return regerr.Storage("DeleteCrate", err)
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM packages WHERE id = $1", packageID); err != nil {
			return translateWriteErr("DeleteCrate", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return regerr.Storage("DeleteCrate", err)
	}
	s.cache.Invalidate(ctx, normalizedName)
	return nil
}

// UpdateDocsLink sets a version's documentation URL, invalidating the
// package's prefetch cache.
func (s *Store) UpdateDocsLink(ctx context.Context, normalizedName, versionString, url string) error {
	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("UpdateDocsLink", err)
	}
	defer tx.Rollback()

	var packageID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM packages WHERE normalized_name = $1 FOR UPDATE", normalizedName).Scan(&packageID); err != nil {
		if err == sql.ErrNoRows {
			return regerr.NotFound("UpdateDocsLink", err)
		}
		return regerr.Storage("UpdateDocsLink", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE versions SET documentation = $1 WHERE package_id = $2 AND version_string = $3
	`, url, packageID, versionString)
	if err != nil {
		return translateWriteErr("UpdateDocsLink", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return regerr.NotFound("UpdateDocsLink", sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return regerr.Storage("UpdateDocsLink", err)
	}
	s.cache.Invalidate(ctx, normalizedName)
	return nil
}

// AddOwner grants principalName ownership of normalizedName.
func (s *Store) AddOwner(ctx context.Context, normalizedName, principalName string) error {
	_, err := s.primary().ExecContext(ctx, `
		INSERT INTO package_owners (package_id, principal_id)
		SELECT p.id, pr.id FROM packages p, principals pr
		WHERE p.normalized_name = $1 AND pr.name = $2
	`, normalizedName, principalName)
	if err != nil {
		return translateWriteErr("AddOwner", err)
	}
	return nil
}

// DeleteOwner revokes principalName's ownership of normalizedName.
func (s *Store) DeleteOwner(ctx context.Context, normalizedName, principalName string) error {
	_, err := s.primary().ExecContext(ctx, `
		DELETE FROM package_owners
		WHERE package_id = (SELECT id FROM packages WHERE normalized_name = $1)
		AND principal_id = (SELECT id FROM principals WHERE name = $2)
	`, normalizedName, principalName)
	if err != nil {
		return regerr.Storage("DeleteOwner", err)
	}
	return nil
}

// IsOwner reports whether principalName owns normalizedName.
func (s *Store) IsOwner(ctx context.Context, normalizedName, principalName string) (bool, error) {
	var isOwner bool
	err := s.replica().QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM package_owners po
			JOIN packages p ON p.id = po.package_id
			JOIN principals pr ON pr.id = po.principal_id
			WHERE p.normalized_name = $1 AND pr.name = $2
		)
	`, normalizedName, principalName).Scan(&isOwner)
	if err != nil {
		return false, regerr.Storage("IsOwner", err)
	}
	return isOwner, nil
}

// GetCrateOwners returns every principal name owning normalizedName.
func (s *Store) GetCrateOwners(ctx context.Context, normalizedName string) ([]string, error) {
	rows, err := s.replica().QueryContext(ctx, `
		SELECT pr.name FROM package_owners po
		JOIN principals pr ON pr.id = po.principal_id
		JOIN packages p ON p.id = po.package_id
		WHERE p.normalized_name = $1
		ORDER BY pr.name
	`, normalizedName)
	if err != nil {
		return nil, regerr.Storage("GetCrateOwners", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, regerr.Storage("GetCrateOwners", err)
		}
		owners = append(owners, o)
	}
	return owners, nil
}

// GetPrefetchData returns the sparse-index prefetch document for
// normalizedName, serving from the L1/L2 cache when present and
// recomputing from the versions table on a miss. No uncached copy is
// kept in this package itself; recomputation is always from SQL.
//
// Concurrent misses for the same crate collapse into a single rebuild
// via prefetchSF, so a stampede of index requests right after a cache
// invalidation issues one query instead of one per caller.
func (s *Store) GetPrefetchData(ctx context.Context, normalizedName string) (index.Prefetch, error) {
	if p, ok := s.cache.Get(ctx, normalizedName); ok {
		return p, nil
	}

	v, err, _ := s.prefetchSF.Do(normalizedName, func() (interface{}, error) {
		return s.rebuildPrefetchData(ctx, normalizedName)
	})
	if err != nil {
		return index.Prefetch{}, err
	}
	return v.(index.Prefetch), nil
}

func (s *Store) rebuildPrefetchData(ctx context.Context, normalizedName string) (index.Prefetch, error) {
	if p, ok := s.cache.Get(ctx, normalizedName); ok {
		return p, nil
	}

	var originalName string
	id, ok, err := s.GetCrateID(ctx, normalizedName)
	if err != nil {
		return index.Prefetch{}, err
	}
	if !ok {
		return index.Prefetch{}, regerr.NotFound("GetPrefetchData", sql.ErrNoRows)
	}
	if err := s.replica().QueryRowContext(ctx, "SELECT original_name FROM packages WHERE id = $1", id).Scan(&originalName); err != nil {
		return index.Prefetch{}, regerr.Storage("GetPrefetchData", err)
	}

	versions, err := s.loadVersionRows(ctx, id)
	if err != nil {
		return index.Prefetch{}, err
	}
	sortCrateVersionsAsc(versions)

	records := make([]index.VersionedRecord, len(versions))
	for i, v := range versions {
		records[i] = index.VersionedRecord{
			Record: index.Record{
				Name:     originalName,
				Vers:     v.Version,
				Deps:     v.Deps,
				Checksum: v.Checksum,
				Features: v.Features,
				Yanked:   v.Yanked,
				Links:    v.Links,
			},
			CreatedAt: v.CreatedAt,
		}
	}

	prefetch, err := index.Build(records)
	if err != nil {
		return index.Prefetch{}, regerr.Serialization("GetPrefetchData", err)
	}

	s.cache.Set(ctx, normalizedName, prefetch)
	return prefetch, nil
}
