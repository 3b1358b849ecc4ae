// ABOUTME: Behavior-parent cache loaded from a TOML definitions file
// ABOUTME: Parents inherit messages from each other; rebuilds swap the whole set atomically

package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
)

// Message keys looked up by the server.
const (
	MsgConnect = "connect"
	MsgHome    = "home"
)

// ErrInheritanceCycle indicates parents that inherit from each other.
var ErrInheritanceCycle = errors.New("behavior inheritance cycle")

// Defaults apply when no definitions file exists or a key is never defined.
var Defaults = map[string]string{
	MsgConnect: "Welcome, {name}.",
	MsgHome:    "There's no place like home...",
}

// Parent is one behavior definition.
type Parent struct {
	Name     string            `toml:"-"`
	Inherits string            `toml:"inherits"`
	Messages map[string]string `toml:"messages"`
}

type file struct {
	Parents map[string]*Parent `toml:"parents"`
}

type snapshot struct {
	parents map[string]*Parent
}

// Cache holds the loaded behavior parents.
type Cache struct {
	path    string
	current atomic.Pointer[snapshot]
	logger  *slog.Logger
}

// NewCache creates a cache for the given definitions file. An empty path
// yields a cache that only serves Defaults.
func NewCache(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{path: path, logger: logger.With("component", "behaviors")}
	c.current.Store(&snapshot{parents: map[string]*Parent{}})
	return c
}

// Path returns the definitions file path.
func (c *Cache) Path() string { return c.path }

// Rebuild re-reads the definitions file. On error the previous set stays.
func (c *Cache) Rebuild(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	var f file
	md, err := toml.DecodeFile(c.path, &f)
	if errors.Is(err, os.ErrNotExist) {
		c.current.Store(&snapshot{parents: map[string]*Parent{}})
		c.logger.Warn("behavior file missing, using defaults", "path", c.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("parsing behaviors: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		c.logger.Warn("unknown keys in behavior file", "keys", fmt.Sprint(undecoded))
	}

	parents := make(map[string]*Parent, len(f.Parents))
	for name, p := range f.Parents {
		if p == nil {
			p = &Parent{}
		}
		p.Name = strings.ToLower(name)
		p.Inherits = strings.ToLower(p.Inherits)
		if p.Messages == nil {
			p.Messages = map[string]string{}
		}
		parents[p.Name] = p
	}

	for name := range parents {
		if err := checkChain(parents, name); err != nil {
			return err
		}
	}

	c.current.Store(&snapshot{parents: parents})
	c.logger.Info("behavior parents rebuilt", "parents", len(parents))
	return nil
}

func checkChain(parents map[string]*Parent, name string) error {
	seen := map[string]bool{}
	for cur := name; cur != ""; {
		if seen[cur] {
			return fmt.Errorf("%w: %s", ErrInheritanceCycle, name)
		}
		seen[cur] = true
		p, ok := parents[cur]
		if !ok {
			return nil
		}
		cur = p.Inherits
	}
	return nil
}

// Names returns the loaded parent names, sorted.
func (c *Cache) Names() []string {
	snap := c.current.Load()
	out := make([]string, 0, len(snap.parents))
	for name := range snap.parents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Message returns the text for key, walking the inheritance chain of
// parent and falling back to Defaults. "{name}" is replaced with name.
func (c *Cache) Message(parent, key, name string) string {
	snap := c.current.Load()
	text, ok := lookup(snap.parents, strings.ToLower(parent), key)
	if !ok {
		text = Defaults[key]
	}
	return strings.ReplaceAll(text, "{name}", name)
}

func lookup(parents map[string]*Parent, parent, key string) (string, bool) {
	seen := map[string]bool{}
	for cur := parent; cur != "" && !seen[cur]; {
		seen[cur] = true
		p, ok := parents[cur]
		if !ok {
			return "", false
		}
		if text, ok := p.Messages[key]; ok {
			return text, true
		}
		cur = p.Inherits
	}
	return "", false
}
