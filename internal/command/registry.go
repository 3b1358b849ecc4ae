// ABOUTME: Command specs and the registry that maps names to them
// ABOUTME: The registry serves an immutable table and swaps in a rebuilt one atomically

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/2389/coven-keep/internal/auth"
)

// ErrDuplicateCommand indicates two specs with the same name.
var ErrDuplicateCommand = errors.New("command already registered")

// ErrInvalidSpec indicates a spec without a name or handler.
var ErrInvalidSpec = errors.New("invalid command spec")

// Handler runs a command and returns the text sent back to the invoker.
// Failures should be *Error values so the invoker sees a precise message.
type Handler func(ctx context.Context, inv *Invocation) (string, error)

// Spec describes one command.
type Spec struct {
	Name       string
	Switches   []string // accepted switches; nil accepts none
	Required   []auth.Capability
	Usage      string
	SwitchHelp string // replaces the generic unknown switch reply when set
	Handler    Handler
}

// Table is an immutable set of specs.
type Table struct {
	specs map[string]*Spec
	names []string
}

// NewTable validates specs and builds a Table.
func NewTable(specs ...Spec) (*Table, error) {
	t := &Table{specs: make(map[string]*Spec, len(specs))}
	for i := range specs {
		spec := specs[i]
		spec.Name = strings.ToLower(strings.TrimSpace(spec.Name))
		if spec.Name == "" || spec.Handler == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSpec, specs[i].Name)
		}
		if _, exists := t.specs[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCommand, spec.Name)
		}
		spec.Switches = append([]string(nil), spec.Switches...)
		spec.Required = append([]auth.Capability(nil), spec.Required...)
		t.specs[spec.Name] = &spec
		t.names = append(t.names, spec.Name)
	}
	sort.Strings(t.names)
	return t, nil
}

// Lookup returns the spec for name.
func (t *Table) Lookup(name string) (*Spec, bool) {
	spec, ok := t.specs[strings.ToLower(name)]
	return spec, ok
}

// Names returns every command name, sorted.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Loader produces the full list of specs. It is called once at startup
// and again on every rebuild.
type Loader func() ([]Spec, error)

// Registry serves the current Table.
type Registry struct {
	load    Loader
	current atomic.Pointer[Table]
	builds  atomic.Int64
	logger  *slog.Logger
}

// NewRegistry loads the initial table.
func NewRegistry(load Loader, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{load: load, logger: logger.With("component", "commands")}
	if err := r.Rebuild(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Rebuild reruns the loader and swaps the table. On error the previous
// table stays in service.
func (r *Registry) Rebuild(ctx context.Context) error {
	specs, err := r.load()
	if err != nil {
		return fmt.Errorf("loading commands: %w", err)
	}
	table, err := NewTable(specs...)
	if err != nil {
		return err
	}
	r.current.Store(table)
	n := r.builds.Add(1)
	r.logger.Info("command table built", "commands", len(table.names), "generation", n)
	return nil
}

// Lookup returns the spec for name from the current table.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	return r.current.Load().Lookup(name)
}

// Table returns the current table.
func (r *Registry) Table() *Table {
	return r.current.Load()
}

// Generation counts successful builds, starting at 1.
func (r *Registry) Generation() int64 {
	return r.builds.Load()
}
