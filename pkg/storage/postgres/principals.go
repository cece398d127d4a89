package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kellnr/kellnr/pkg/auth"
	"github.com/kellnr/kellnr/pkg/regerr"
)

// AddUser creates a principal and returns its id. Fails regerr.Duplicate
// if name is already taken.
func (s *Store) AddUser(ctx context.Context, name, pwd, salt string, isAdmin, isReadOnly bool) (int64, error) {
	ctx, span := tracer.Start(ctx, "AddUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "principals"),
	))
	defer span.End()

	hash := auth.HashPassword(pwd, salt)
	var id int64
	err := s.primary().QueryRowContext(ctx, `
		INSERT INTO principals (name, pwd, salt, is_admin, is_read_only)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, name, hash, salt, isAdmin, isReadOnly).Scan(&id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add user")
		return 0, translateWriteErr("AddUser", err)
	}
	span.SetStatus(codes.Ok, "")
	return id, nil
}

// GetUser returns the principal row for name, or regerr.NotFound.
func (s *Store) GetUser(ctx context.Context, name string) (auth.Principal, error) {
	ctx, span := tracer.Start(ctx, "GetUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "principals"),
	))
	defer span.End()

	var p auth.Principal
	err := s.replica().QueryRowContext(ctx, `
		SELECT id, name, pwd, salt, is_admin, is_read_only
		FROM principals WHERE name = $1
	`, name).Scan(&p.ID, &p.Name, &p.Pwd, &p.Salt, &p.IsAdmin, &p.IsReadOnly)
	if err == sql.ErrNoRows {
		span.SetStatus(codes.Error, "user not found")
		return auth.Principal{}, regerr.NotFound("GetUser", err)
	} else if err != nil {
		span.RecordError(err)
		return auth.Principal{}, regerr.Storage("GetUser", err)
	}
	span.SetStatus(codes.Ok, "")
	return p, nil
}

// GetUsers returns every principal, ordered by id.
func (s *Store) GetUsers(ctx context.Context) ([]auth.Principal, error) {
	ctx, span := tracer.Start(ctx, "GetUsers", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "principals"),
	))
	defer span.End()

	rows, err := s.replica().QueryContext(ctx, `
		SELECT id, name, pwd, salt, is_admin, is_read_only
		FROM principals ORDER BY id
	`)
	if err != nil {
		span.RecordError(err)
		return nil, regerr.Storage("GetUsers", err)
	}
	defer rows.Close()

	var users []auth.Principal
	for rows.Next() {
		var p auth.Principal
		if err := rows.Scan(&p.ID, &p.Name, &p.Pwd, &p.Salt, &p.IsAdmin, &p.IsReadOnly); err != nil {
			return nil, regerr.Storage("GetUsers", err)
		}
		users = append(users, p)
	}
	span.SetStatus(codes.Ok, "")
	return users, nil
}

// DeleteUser removes a principal, cascading to its sessions and API
// tokens and unlinking it from any package it co-owns. Fails
// regerr.Forbidden if the principal is the sole owner of any package,
// to avoid orphaning it.
func (s *Store) DeleteUser(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.table", "principals"),
	))
	defer span.End()

	tx, err := s.primary().BeginTx(ctx, nil)
	if err != nil {
		return regerr.Storage("DeleteUser", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM principals WHERE name = $1", name).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return regerr.NotFound("DeleteUser", err)
		}
		return regerr.Storage("DeleteUser", err)
	}

	var soleOwnerCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM package_owners po
		WHERE po.principal_id = $1
		AND (SELECT COUNT(*) FROM package_owners WHERE package_id = po.package_id) = 1
	`, id).Scan(&soleOwnerCount)
	if err != nil {
		return regerr.Storage("DeleteUser", err)
	}
	if soleOwnerCount > 0 {
		return regerr.Forbidden("DeleteUser", errors.New("principal is the sole owner of at least one package"))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM package_owners WHERE principal_id = $1", id); err != nil {
		return regerr.Storage("DeleteUser", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM principals WHERE id = $1", id); err != nil {
		return translateWriteErr("DeleteUser", err)
	}

	if err := tx.Commit(); err != nil {
		return regerr.Storage("DeleteUser", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// AuthenticateUser verifies pwd against the stored salted hash.
func (s *Store) AuthenticateUser(ctx context.Context, name, pwd string) (auth.Principal, error) {
	p, err := s.GetUser(ctx, name)
	if err != nil {
		return auth.Principal{}, err
	}
	if !auth.VerifyPassword(pwd, p.Salt, p.Pwd) {
		return auth.Principal{}, regerr.BadCredentials("AuthenticateUser", nil)
	}
	return p, nil
}

// ChangePassword rehashes newPwd with the principal's stored salt.
func (s *Store) ChangePassword(ctx context.Context, name, newPwd string) error {
	p, err := s.GetUser(ctx, name)
	if err != nil {
		return err
	}
	hash := auth.HashPassword(newPwd, p.Salt)
	res, err := s.primary().ExecContext(ctx, "UPDATE principals SET pwd = $1 WHERE id = $2", hash, p.ID)
	if err != nil {
		return translateWriteErr("ChangePassword", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return regerr.NotFound("ChangePassword", sql.ErrNoRows)
	}
	return nil
}

// AddAuthToken creates an API token for principal and returns its id.
func (s *Store) AddAuthToken(ctx context.Context, label, token, principalName string) (int64, error) {
	ctx, span := tracer.Start(ctx, "AddAuthToken", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.table", "api_tokens"),
	))
	defer span.End()

	var id int64
	err := s.primary().QueryRowContext(ctx, `
		INSERT INTO api_tokens (label, token, principal_id)
		SELECT $1, $2, id FROM principals WHERE name = $3
		RETURNING id
	`, label, token, principalName).Scan(&id)
	if err == sql.ErrNoRows {
		span.SetStatus(codes.Error, "principal not found")
		return 0, regerr.NotFound("AddAuthToken", err)
	} else if err != nil {
		span.RecordError(err)
		return 0, translateWriteErr("AddAuthToken", err)
	}
	span.SetStatus(codes.Ok, "")
	return id, nil
}

// GetAuthTokens returns every API token for principal. The first element
// is a synthetic row carrying the principal's own name as its label,
// followed by the actual tokens in insertion order — replicating the
// self-row behavior observed in the reference implementation's test
// suite rather than silently dropping it (see DESIGN.md for the
// open-question decision).
func (s *Store) GetAuthTokens(ctx context.Context, principalName string) ([]auth.APIToken, error) {
	ctx, span := tracer.Start(ctx, "GetAuthTokens", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.table", "api_tokens"),
	))
	defer span.End()

	var principalID int64
	if err := s.replica().QueryRowContext(ctx, "SELECT id FROM principals WHERE name = $1", principalName).Scan(&principalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, regerr.NotFound("GetAuthTokens", err)
		}
		return nil, regerr.Storage("GetAuthTokens", err)
	}

	tokens := []auth.APIToken{{PrincipalName: principalName, Label: principalName}}

	rows, err := s.replica().QueryContext(ctx, `
		SELECT id, label, token FROM api_tokens WHERE principal_id = $1 ORDER BY id
	`, principalID)
	if err != nil {
		return nil, regerr.Storage("GetAuthTokens", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t auth.APIToken
		t.PrincipalName = principalName
		if err := rows.Scan(&t.ID, &t.Label, &t.Token); err != nil {
			return nil, regerr.Storage("GetAuthTokens", err)
		}
		tokens = append(tokens, t)
	}
	span.SetStatus(codes.Ok, "")
	return tokens, nil
}

// DeleteAuthToken removes an API token by id.
func (s *Store) DeleteAuthToken(ctx context.Context, id int64) error {
	_, err := s.primary().ExecContext(ctx, "DELETE FROM api_tokens WHERE id = $1", id)
	if err != nil {
		return translateWriteErr("DeleteAuthToken", err)
	}
	return nil
}

// GetUserFromToken resolves the principal owning token.
func (s *Store) GetUserFromToken(ctx context.Context, token string) (auth.Principal, error) {
	var p auth.Principal
	err := s.replica().QueryRowContext(ctx, `
		SELECT pr.id, pr.name, pr.pwd, pr.salt, pr.is_admin, pr.is_read_only
		FROM principals pr
		JOIN api_tokens t ON t.principal_id = pr.id
		WHERE t.token = $1
	`, token).Scan(&p.ID, &p.Name, &p.Pwd, &p.Salt, &p.IsAdmin, &p.IsReadOnly)
	if err == sql.ErrNoRows {
		return auth.Principal{}, regerr.NotFound("GetUserFromToken", err)
	} else if err != nil {
		return auth.Principal{}, regerr.Storage("GetUserFromToken", err)
	}
	return p, nil
}

// AddSessionToken creates a session for principalName expiring after ttl.
func (s *Store) AddSessionToken(ctx context.Context, principalName, token string, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl)
	_, err := s.primary().ExecContext(ctx, `
		INSERT INTO sessions (token, principal_id, expires_at)
		SELECT $1, id, $2 FROM principals WHERE name = $3
	`, token, expiresAt, principalName)
	if err != nil {
		return translateWriteErr("AddSessionToken", err)
	}
	return nil
}

// ValidateSession returns the owning principal's name and the session's
// expiry, failing regerr.NotFound if the token is unknown or
// regerr.Expired if it has lapsed.
func (s *Store) ValidateSession(ctx context.Context, token string) (string, time.Time, error) {
	var principalName string
	var expiresAt time.Time
	err := s.replica().QueryRowContext(ctx, `
		SELECT pr.name, se.expires_at
		FROM sessions se
		JOIN principals pr ON pr.id = se.principal_id
		WHERE se.token = $1
	`, token).Scan(&principalName, &expiresAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, regerr.NotFound("ValidateSession", err)
	} else if err != nil {
		return "", time.Time{}, regerr.Storage("ValidateSession", err)
	}
	if time.Now().UTC().After(expiresAt) {
		return "", time.Time{}, regerr.Expired("ValidateSession", nil)
	}
	return principalName, expiresAt, nil
}

// DeleteSessionToken removes a session. Absence of the token is not an error.
func (s *Store) DeleteSessionToken(ctx context.Context, token string) error {
	_, err := s.primary().ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	if err != nil {
		return regerr.Storage("DeleteSessionToken", err)
	}
	return nil
}

// CleanDB deletes sessions created before now-ttl, independent of their
// individual expiry.
func (s *Store) CleanDB(ctx context.Context, ttl time.Duration) error {
	cutoff := time.Now().UTC().Add(-ttl)
	_, err := s.primary().ExecContext(ctx, "DELETE FROM sessions WHERE created_at < $1", cutoff)
	if err != nil {
		return regerr.Storage("CleanDB", err)
	}
	return nil
}
