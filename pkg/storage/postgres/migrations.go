package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema change applied exactly once.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns every registry schema migration, in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create principals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS principals (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					pwd VARCHAR(255) NOT NULL,
					salt VARCHAR(255) NOT NULL,
					is_admin BOOLEAN NOT NULL DEFAULT FALSE,
					is_read_only BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create sessions and api tokens tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					token VARCHAR(255) PRIMARY KEY,
					principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
					expires_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX idx_sessions_principal_id ON sessions(principal_id);
				CREATE INDEX idx_sessions_expires_at ON sessions(expires_at);

				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					label VARCHAR(255) NOT NULL,
					token VARCHAR(255) NOT NULL UNIQUE,
					principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX idx_api_tokens_principal_id ON api_tokens(principal_id);
			`,
		},
		{
			Version:     3,
			Description: "Create packages and ownership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS packages (
					id BIGSERIAL PRIMARY KEY,
					original_name VARCHAR(255) NOT NULL,
					normalized_name VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX idx_packages_normalized_name ON packages(normalized_name);

				CREATE TABLE IF NOT EXISTS package_owners (
					package_id BIGINT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
					principal_id BIGINT NOT NULL REFERENCES principals(id) ON DELETE RESTRICT,
					PRIMARY KEY (package_id, principal_id)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create versions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS versions (
					id BIGSERIAL PRIMARY KEY,
					package_id BIGINT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
					version_string VARCHAR(255) NOT NULL,
					checksum VARCHAR(128) NOT NULL,
					yanked BOOLEAN NOT NULL DEFAULT FALSE,
					downloads BIGINT NOT NULL DEFAULT 0,
					documentation VARCHAR(1024),
					readme TEXT,
					license VARCHAR(255),
					license_file VARCHAR(255),
					links VARCHAR(255),
					homepage VARCHAR(1024),
					repository VARCHAR(1024),
					description TEXT,
					schema_version INT NOT NULL DEFAULT 1,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE (package_id, version_string)
				);
				CREATE INDEX idx_versions_package_id ON versions(package_id);
			`,
		},
		{
			Version:     5,
			Description: "Create per-version dependency, feature, and tag tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS dependencies (
					id BIGSERIAL PRIMARY KEY,
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					position INT NOT NULL,
					name VARCHAR(255) NOT NULL,
					version_req VARCHAR(255) NOT NULL,
					features TEXT[] NOT NULL DEFAULT '{}',
					optional BOOLEAN NOT NULL DEFAULT FALSE,
					default_features BOOLEAN NOT NULL DEFAULT TRUE,
					target VARCHAR(255),
					kind VARCHAR(32),
					registry VARCHAR(1024),
					explicit_name_in_toml VARCHAR(255)
				);
				CREATE INDEX idx_dependencies_version_id ON dependencies(version_id);

				CREATE TABLE IF NOT EXISTS features (
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					enables TEXT[] NOT NULL DEFAULT '{}',
					PRIMARY KEY (version_id, name)
				);

				CREATE TABLE IF NOT EXISTS keywords (
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					keyword VARCHAR(255) NOT NULL,
					PRIMARY KEY (version_id, keyword)
				);

				CREATE TABLE IF NOT EXISTS categories (
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					category VARCHAR(255) NOT NULL,
					PRIMARY KEY (version_id, category)
				);

				CREATE TABLE IF NOT EXISTS authors (
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					author VARCHAR(255) NOT NULL,
					PRIMARY KEY (version_id, author)
				);

				CREATE TABLE IF NOT EXISTS badges (
					version_id BIGINT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
					badge VARCHAR(255) NOT NULL,
					PRIMARY KEY (version_id, badge)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create upstream mirror tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS mirror_packages (
					normalized_name VARCHAR(255) PRIMARY KEY,
					original_name VARCHAR(255) NOT NULL,
					etag VARCHAR(64) NOT NULL,
					last_modified VARCHAR(32) NOT NULL,
					ttl_seconds BIGINT,
					fetched_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS mirror_versions (
					id BIGSERIAL PRIMARY KEY,
					normalized_name VARCHAR(255) NOT NULL REFERENCES mirror_packages(normalized_name) ON DELETE CASCADE,
					version_string VARCHAR(255) NOT NULL,
					record JSONB NOT NULL,
					downloads BIGINT NOT NULL DEFAULT 0,
					UNIQUE (normalized_name, version_string)
				);
				CREATE INDEX idx_mirror_versions_normalized_name ON mirror_versions(normalized_name);
			`,
		},
		{
			Version:     7,
			Description: "Create doc queue table",
			SQL: `
				CREATE TABLE IF NOT EXISTS doc_queue (
					id BIGSERIAL PRIMARY KEY,
					normalized_name VARCHAR(255) NOT NULL,
					version_string VARCHAR(255) NOT NULL,
					tarball_path VARCHAR(1024) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations applies every pending migration inside its own
// transaction, recording it in registry_migrations so a restart doesn't
// re-run completed ones.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM registry_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO registry_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
