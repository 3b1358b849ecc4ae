// ABOUTME: Command alias persistence for SQLiteStore
// ABOUTME: Aliases are read back in bulk when the alias cache is rebuilt

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SetAlias creates or replaces an alias.
func (s *SQLiteStore) SetAlias(ctx context.Context, alias Alias) error {
	name := strings.ToLower(strings.TrimSpace(alias.Name))
	target := strings.ToLower(strings.TrimSpace(alias.Target))
	if name == "" || target == "" {
		return ErrInvalidAlias
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_aliases (name, target, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET target = excluded.target
	`, name, target, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving alias: %w", err)
	}
	return nil
}

// DeleteAlias removes an alias. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteAlias(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM command_aliases WHERE name = ?`, strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("deleting alias: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAliases returns every alias ordered by name.
func (s *SQLiteStore) ListAliases(ctx context.Context) ([]Alias, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, target FROM command_aliases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	aliases := []Alias{}
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.Name, &a.Target); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aliases: %w", err)
	}
	return aliases, nil
}
