// ABOUTME: Actor persistence for SQLiteStore: create, lookup, search and the two mutations
// ABOUTME: the control plane performs (credential replacement and relocation)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-keep/internal/auth"
)

const actorColumns = `id, name, password_hash, player, superuser, rank, owner_id, capabilities, parent, home, location, created_at`

// CreateActor inserts a new actor and sets its ID.
// Returns ErrDuplicateActor if the name is taken (case-insensitive).
func (s *SQLiteStore) CreateActor(ctx context.Context, a *Actor) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("actor name is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Parent == "" {
		a.Parent = "player"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (name, name_lower, password_hash, player, superuser, rank, owner_id, capabilities, parent, home, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.Name,
		strings.ToLower(a.Name),
		a.PasswordHash,
		boolToInt(a.Player),
		boolToInt(a.Superuser),
		a.Rank,
		a.OwnerID,
		strings.Join(a.Capabilities.Strings(), ","),
		a.Parent,
		a.Home,
		a.Location,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateActor
		}
		return fmt.Errorf("inserting actor: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading actor id: %w", err)
	}
	a.ID = id

	s.logger.Debug("created actor", "id", a.ID, "name", a.Name)
	return nil
}

// GetActor retrieves an actor by ID.
// Returns ErrNotFound if the actor doesn't exist.
func (s *SQLiteStore) GetActor(ctx context.Context, id int64) (*Actor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = ?`, id)
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActorByName retrieves an actor by exact, case-insensitive name.
// Returns ErrNotFound if the actor doesn't exist.
func (s *SQLiteStore) GetActorByName(ctx context.Context, name string) (*Actor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE name_lower = ?`, strings.ToLower(name))
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SearchActors resolves free text to candidate actors.
func (s *SQLiteStore) SearchActors(ctx context.Context, query string) ([]*Actor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Actor{}, nil
	}

	if strings.HasPrefix(query, "#") {
		id, ok := ParseRef(query)
		if !ok {
			return []*Actor{}, nil
		}
		a, err := s.GetActor(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return []*Actor{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*Actor{a}, nil
	}

	a, err := s.GetActorByName(ctx, query)
	if err == nil {
		return []*Actor{a}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actorColumns+` FROM actors WHERE name_lower LIKE ? ESCAPE '\' ORDER BY name_lower`,
		escapeLike(strings.ToLower(query))+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("searching actors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectActors(rows)
}

// ListActors returns every actor ordered by ID.
func (s *SQLiteStore) ListActors(ctx context.Context) ([]*Actor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actorColumns+` FROM actors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectActors(rows)
}

// UpdateActorPassword replaces an actor's credential hash.
// Returns ErrNotFound if the actor doesn't exist.
func (s *SQLiteStore) UpdateActorPassword(ctx context.Context, id int64, hash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE actors SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("updating actor password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated actor password", "id", id)
	return nil
}

// MoveActor sets an actor's location.
// Returns ErrNotFound if the actor doesn't exist.
func (s *SQLiteStore) MoveActor(ctx context.Context, id int64, location int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE actors SET location = ? WHERE id = ?`, location, id)
	if err != nil {
		return fmt.Errorf("moving actor: %w", err)
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

func collectActors(rows *sql.Rows) ([]*Actor, error) {
	actors := []*Actor{}
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actors: %w", err)
	}
	return actors, nil
}

// scanActor scans a row into an Actor.
func scanActor(scanner interface{ Scan(dest ...any) error }) (*Actor, error) {
	var a Actor
	var player, superuser int
	var caps, createdAt string

	if err := scanner.Scan(
		&a.ID,
		&a.Name,
		&a.PasswordHash,
		&player,
		&superuser,
		&a.Rank,
		&a.OwnerID,
		&caps,
		&a.Parent,
		&a.Home,
		&a.Location,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning actor: %w", err)
	}

	a.Player = player != 0
	a.Superuser = superuser != 0
	a.Capabilities = auth.ParseCapabilities(caps)

	var err error
	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &a, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
