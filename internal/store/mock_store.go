// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping the same search semantics

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	actors  map[int64]*Actor
	nextID  int64
	aliases map[string]string
	audit   []AuditEntry

	// FailAudit makes AppendAuditLog return this error when set.
	FailAudit error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		actors:  make(map[int64]*Actor),
		aliases: make(map[string]string),
	}
}

// CreateActor stores a copy of the actor and assigns its ID.
func (m *MockStore) CreateActor(ctx context.Context, a *Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lower := strings.ToLower(a.Name)
	for _, existing := range m.actors {
		if strings.ToLower(existing.Name) == lower {
			return ErrDuplicateActor
		}
	}

	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Parent == "" {
		a.Parent = "player"
	}
	m.actors[a.ID] = a.Clone()
	return nil
}

// GetActor retrieves a copy of an actor by ID.
func (m *MockStore) GetActor(ctx context.Context, id int64) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.actors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// GetActorByName retrieves a copy of an actor by case-insensitive name.
func (m *MockStore) GetActorByName(ctx context.Context, name string) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(name)
	for _, a := range m.actors {
		if strings.ToLower(a.Name) == lower {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// SearchActors mirrors SQLiteStore.SearchActors.
func (m *MockStore) SearchActors(ctx context.Context, query string) ([]*Actor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Actor{}, nil
	}

	if strings.HasPrefix(query, "#") {
		id, ok := ParseRef(query)
		if !ok {
			return []*Actor{}, nil
		}
		a, err := m.GetActor(ctx, id)
		if err != nil {
			return []*Actor{}, nil
		}
		return []*Actor{a}, nil
	}

	if a, err := m.GetActorByName(ctx, query); err == nil {
		return []*Actor{a}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(query)
	matches := []*Actor{}
	for _, a := range m.actors {
		if strings.HasPrefix(strings.ToLower(a.Name), lower) {
			matches = append(matches, a.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return strings.ToLower(matches[i].Name) < strings.ToLower(matches[j].Name)
	})
	return matches, nil
}

// ListActors returns copies of every actor ordered by ID.
func (m *MockStore) ListActors(ctx context.Context) ([]*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateActorPassword replaces the stored hash.
func (m *MockStore) UpdateActorPassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

// MoveActor sets the stored location.
func (m *MockStore) MoveActor(ctx context.Context, id int64, location int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.Location = location
	return nil
}

// SetAlias creates or replaces an alias.
func (m *MockStore) SetAlias(ctx context.Context, alias Alias) error {
	name := strings.ToLower(strings.TrimSpace(alias.Name))
	target := strings.ToLower(strings.TrimSpace(alias.Target))
	if name == "" || target == "" {
		return ErrInvalidAlias
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[name] = target
	return nil
}

// DeleteAlias removes an alias.
func (m *MockStore) DeleteAlias(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.ToLower(name)
	if _, ok := m.aliases[name]; !ok {
		return ErrNotFound
	}
	delete(m.aliases, name)
	return nil
}

// ListAliases returns every alias ordered by name.
func (m *MockStore) ListAliases(ctx context.Context) ([]Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alias, 0, len(m.aliases))
	for name, target := range m.aliases {
		out = append(out, Alias{Name: name, Target: target})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AppendAuditLog records the entry in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAudit != nil {
		return m.FailAudit
	}
	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns matching entries newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeAuditLimit(f.Limit)
	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)
