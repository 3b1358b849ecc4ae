// ABOUTME: Resolves free-text targets to actors and their live sessions
// ABOUTME: Distinguishes no match from an ambiguous match; port lookup takes the first hit

package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

var (
	// ErrNoMatch indicates nothing matched the target text.
	ErrNoMatch = errors.New("no match")
	// ErrInvalidPort indicates port-mode target text that is not a port number.
	ErrInvalidPort = errors.New("invalid port")
	// ErrEmptyTarget indicates blank target text.
	ErrEmptyTarget = errors.New("empty target")
)

// AmbiguousError is returned when a name matches more than one actor.
type AmbiguousError struct {
	Query   string
	Matches []*store.Actor
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Matches))
	for i, a := range e.Matches {
		names[i] = a.String()
	}
	return fmt.Sprintf("%q is ambiguous: %s", e.Query, strings.Join(names, ", "))
}

// Mode selects how target text is interpreted.
type Mode int

const (
	// ByNameOrID resolves "#id" or a (partial) actor name via the store.
	ByNameOrID Mode = iota
	// ByPort resolves a remote transport port against the live sessions.
	ByPort
)

func (m Mode) String() string {
	switch m {
	case ByNameOrID:
		return "name"
	case ByPort:
		return "port"
	default:
		return "unknown"
	}
}

// Searcher is the store search the resolver delegates to.
type Searcher interface {
	SearchActors(ctx context.Context, query string) ([]*store.Actor, error)
	GetActor(ctx context.Context, id int64) (*store.Actor, error)
}

// Sessions is the read side of the session directory.
type Sessions interface {
	List() []*session.Session
	SessionsFor(actorID int64) []*session.Session
}

// Result is a resolved target. Actor is nil for a port match on a session
// that has not logged in.
type Result struct {
	Actor    *store.Actor
	Sessions []*session.Session
}

// Resolver turns target text into actors and sessions.
type Resolver struct {
	store    Searcher
	sessions Sessions
}

// New creates a Resolver.
func New(store Searcher, sessions Sessions) *Resolver {
	return &Resolver{store: store, sessions: sessions}
}

// Resolve interprets text according to mode.
func (r *Resolver) Resolve(ctx context.Context, text string, mode Mode) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTarget
	}

	switch mode {
	case ByPort:
		sess, err := r.SessionByPort(text)
		if err != nil {
			return nil, err
		}
		res := &Result{Sessions: []*session.Session{sess}}
		if id := sess.ActorID(); id != 0 {
			actor, err := r.store.GetActor(ctx, id)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("loading session actor: %w", err)
			}
			res.Actor = actor
		}
		return res, nil
	default:
		actor, err := r.Actor(ctx, text)
		if err != nil {
			return nil, err
		}
		return &Result{Actor: actor, Sessions: r.sessions.SessionsFor(actor.ID)}, nil
	}
}

// Actor resolves text to exactly one actor.
func (r *Resolver) Actor(ctx context.Context, text string) (*store.Actor, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTarget
	}

	matches, err := r.store.SearchActors(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("searching actors: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, text)
	case 1:
		return matches[0], nil
	default:
		return nil, &AmbiguousError{Query: text, Matches: matches}
	}
}

// SessionByPort returns the first live session, in connect order, whose
// remote port equals the given one.
func (r *Resolver) SessionByPort(text string) (*session.Session, error) {
	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPort, text)
	}

	for _, sess := range r.sessions.List() {
		if sess.RemotePort == port {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("%w: port %d", ErrNoMatch, port)
}
