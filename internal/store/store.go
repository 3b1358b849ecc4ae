// ABOUTME: Store interfaces and the Actor entity shared by the control plane
// ABOUTME: Defines the persistence contract implemented by SQLiteStore and MockStore

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-keep/internal/auth"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateActor indicates an actor with the same name already exists.
var ErrDuplicateActor = errors.New("actor already exists")

// ErrInvalidAlias indicates an alias with an empty name or target.
var ErrInvalidAlias = errors.New("alias name and target are required")

// Actor is an identity capable of authenticating and holding capabilities.
type Actor struct {
	ID           int64
	Name         string
	PasswordHash string
	Player       bool // can authenticate and hold sessions
	Superuser    bool
	Rank         int
	OwnerID      int64 // 0 when unowned
	Capabilities auth.CapabilitySet
	Parent       string // behavior parent, e.g. "player"
	Home         int64  // 0 when no home is set
	Location     int64
	CreatedAt    time.Time
}

// Ref returns the "#id" form used to address an actor unambiguously.
func (a *Actor) Ref() string {
	return "#" + strconv.FormatInt(a.ID, 10)
}

// String renders the actor as "name(#id)".
func (a *Actor) String() string {
	return fmt.Sprintf("%s(%s)", a.Name, a.Ref())
}

// HasHome reports whether the actor has a home location.
func (a *Actor) HasHome() bool {
	return a.Home != 0
}

// Controls reports whether a may perform controlled operations (boot,
// credential change) on b. A superuser target is never controlled, not
// even by itself or by another superuser.
func (a *Actor) Controls(b *Actor) bool {
	if a == nil || b == nil {
		return false
	}
	if b.Superuser {
		return false
	}
	if a.Superuser || a.ID == b.ID {
		return true
	}
	if b.OwnerID != 0 && b.OwnerID == a.ID {
		return true
	}
	return a.Rank > b.Rank
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	c := *a
	c.Capabilities = a.Capabilities.Clone()
	return &c
}

// ParseRef parses "#123" or "123" into an actor ID.
func ParseRef(s string) (int64, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Alias maps an alternative command name onto a registered command.
type Alias struct {
	Name   string
	Target string
}

// ActorStore is the persistence contract for actors.
type ActorStore interface {
	CreateActor(ctx context.Context, a *Actor) error
	GetActor(ctx context.Context, id int64) (*Actor, error)
	GetActorByName(ctx context.Context, name string) (*Actor, error)
	// SearchActors resolves free text to candidate actors. "#id" and exact
	// names (case-insensitive) return a single match; otherwise every
	// actor whose name starts with the query is returned.
	SearchActors(ctx context.Context, query string) ([]*Actor, error)
	ListActors(ctx context.Context) ([]*Actor, error)
	UpdateActorPassword(ctx context.Context, id int64, hash string) error
	MoveActor(ctx context.Context, id int64, location int64) error
}

// AliasStore persists command aliases.
type AliasStore interface {
	SetAlias(ctx context.Context, alias Alias) error
	DeleteAlias(ctx context.Context, name string) error
	ListAliases(ctx context.Context) ([]Alias, error)
}

// AuditStore records privileged actions.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is everything the server needs from persistence.
type Store interface {
	ActorStore
	AliasStore
	AuditStore
	Close() error
}
