// ABOUTME: In-memory command alias table rebuilt from the store on demand
// ABOUTME: Readers see a consistent snapshot while a rebuild swaps in a new one

package alias

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/2389/coven-keep/internal/store"
)

// Builtin aliases are always present; stored aliases with the same name override them.
var Builtin = map[string]string{
	"restart": "reload",
}

// Source lists persisted aliases.
type Source interface {
	ListAliases(ctx context.Context) ([]store.Alias, error)
}

// Table resolves alias names to command text such as "boot/quiet".
type Table struct {
	src     Source
	builtin map[string]string
	current atomic.Pointer[map[string]string]
	logger  *slog.Logger
}

// NewTable creates a table holding only the builtin aliases until Rebuild runs.
func NewTable(src Source, builtin map[string]string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		src:     src,
		builtin: builtin,
		logger:  logger.With("component", "aliases"),
	}
	initial := t.merge(nil)
	t.current.Store(&initial)
	return t
}

// Rebuild reloads aliases from the source and swaps the table atomically.
// On failure the previous table stays in place.
func (t *Table) Rebuild(ctx context.Context) error {
	if t.src == nil {
		return nil
	}
	stored, err := t.src.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("loading aliases: %w", err)
	}
	next := t.merge(stored)
	t.current.Store(&next)
	t.logger.Info("alias table rebuilt", "aliases", len(next))
	return nil
}

func (t *Table) merge(stored []store.Alias) map[string]string {
	out := make(map[string]string, len(t.builtin)+len(stored))
	for name, target := range t.builtin {
		out[strings.ToLower(name)] = target
	}
	for _, a := range stored {
		name := strings.ToLower(strings.TrimSpace(a.Name))
		if name == "" || a.Target == "" {
			continue
		}
		out[name] = a.Target
	}
	return out
}

// Resolve returns the command text an alias expands to.
func (t *Table) Resolve(name string) (string, bool) {
	m := *t.current.Load()
	target, ok := m[strings.ToLower(name)]
	return target, ok
}

// Len returns the number of aliases in the current snapshot.
func (t *Table) Len() int {
	return len(*t.current.Load())
}

// Snapshot returns a copy of the current table.
func (t *Table) Snapshot() map[string]string {
	m := *t.current.Load()
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
