// ABOUTME: Runs selective rebuilds of the alias, behavior-parent and command caches
// ABOUTME: Each requested scope runs once and reports its own completion line

package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrNoScope indicates a reload request that names no scope.
var ErrNoScope = errors.New("no reload scope given")

// Scope is one rebuildable cache.
type Scope int

const (
	Aliases Scope = iota
	Scripts
	Commands
)

// AllScopes lists every scope in execution order.
var AllScopes = []Scope{Aliases, Scripts, Commands}

func (s Scope) String() string {
	switch s {
	case Aliases:
		return "aliases"
	case Scripts:
		return "scripts"
	case Commands:
		return "commands"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// completion returns the line reported after a successful rebuild.
func (s Scope) completion() string {
	switch s {
	case Aliases:
		return "Aliases reloaded."
	case Scripts:
		return "Script parents reloaded."
	case Commands:
		return "Command modules reloaded."
	default:
		return s.String() + " reloaded."
	}
}

// ScopeSet is a set of scopes; iteration order is always AllScopes order.
type ScopeSet map[Scope]bool

// ParseScopes maps command switches to scopes. Unknown switches are
// returned separately so callers can report them.
func ParseScopes(switches []string) (ScopeSet, []string) {
	set := ScopeSet{}
	var unknown []string
	for _, sw := range switches {
		switch strings.ToLower(sw) {
		case "aliases", "alias":
			set[Aliases] = true
		case "scripts", "script":
			set[Scripts] = true
		case "commands", "command":
			set[Commands] = true
		case "all":
			for _, s := range AllScopes {
				set[s] = true
			}
		default:
			unknown = append(unknown, sw)
		}
	}
	return set, unknown
}

// Ordered returns the scopes in execution order.
func (s ScopeSet) Ordered() []Scope {
	out := make([]Scope, 0, len(s))
	for _, scope := range AllScopes {
		if s[scope] {
			out = append(out, scope)
		}
	}
	return out
}

// Rebuilder rebuilds one cache.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// RebuildFunc adapts a function to Rebuilder.
type RebuildFunc func(ctx context.Context) error

// Rebuild calls f.
func (f RebuildFunc) Rebuild(ctx context.Context) error { return f(ctx) }

// Orchestrator dispatches reload requests to the registered rebuilders.
type Orchestrator struct {
	rebuilders map[Scope]Rebuilder
	mu         sync.Mutex // one reload at a time
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(rebuilders map[Scope]Rebuilder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		rebuilders: rebuilders,
		logger:     logger.With("component", "reload"),
	}
}

// Reload runs each requested scope once and returns one line per scope.
// A failing scope reports the failure and does not stop the others; the
// returned error joins every failure.
func (o *Orchestrator) Reload(ctx context.Context, scopes ScopeSet) ([]string, error) {
	ordered := scopes.Ordered()
	if len(ordered) == 0 {
		return nil, ErrNoScope
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var lines []string
	var errs []error
	for _, scope := range ordered {
		rb, ok := o.rebuilders[scope]
		if !ok {
			err := fmt.Errorf("no rebuilder registered for %s", scope)
			lines = append(lines, fmt.Sprintf("Failed to reload %s: %v", scope, err))
			errs = append(errs, err)
			continue
		}
		if err := rb.Rebuild(ctx); err != nil {
			o.logger.Error("reload failed", "scope", scope.String(), "error", err)
			lines = append(lines, fmt.Sprintf("Failed to reload %s: %v", scope, err))
			errs = append(errs, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		o.logger.Info("reloaded", "scope", scope.String())
		lines = append(lines, scope.completion())
	}
	return lines, errors.Join(errs...)
}
