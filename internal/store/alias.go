package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/krishhrana/whatsapp-mcp/internal/identity"
)

// CanonicalOf implements identity.AliasSource.
func (r *Reader) CanonicalOf(ctx context.Context, id string) (string, error) {
	var canonical sql.NullString
	err := r.conn.QueryRowContext(ctx,
		`SELECT canonical_id FROM sender_id_aliases WHERE alias_id = ? LIMIT 1`, id).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", aliasErr(err)
	}
	return canonical.String, nil
}

// AliasesOf implements identity.AliasSource.
func (r *Reader) AliasesOf(ctx context.Context, canonical string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT alias_id FROM sender_id_aliases WHERE canonical_id = ? ORDER BY alias_id`, canonical)
	if err != nil {
		return nil, aliasErr(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		if id.String != "" {
			ids = append(ids, id.String)
		}
	}
	return ids, rows.Err()
}

// aliasErr maps the "no such table" error of an unprovisioned archive to
// identity.ErrAliasTableMissing. Other failures pass through.
func aliasErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrError && strings.Contains(se.Error(), "no such table") {
		return fmt.Errorf("%w: %v", identity.ErrAliasTableMissing, err)
	}
	return fmt.Errorf("query aliases: %w", err)
}

// Expand resolves raw against this connection's alias table.
func (r *Reader) Expand(ctx context.Context, raw string) (identity.Expansion, error) {
	return identity.Expand(ctx, r, raw)
}

// UpsertSenderAlias maps aliasID to canonicalID.
func (db *DB) UpsertSenderAlias(ctx context.Context, aliasID, canonicalID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sender_id_aliases (alias_id, canonical_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(alias_id) DO UPDATE SET
			canonical_id = excluded.canonical_id,
			updated_at = excluded.updated_at`,
		aliasID, canonicalID)
	if err != nil {
		return fmt.Errorf("upsert alias %q: %w", aliasID, err)
	}
	return nil
}
