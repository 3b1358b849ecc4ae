// ABOUTME: Tests for the reload orchestrator and the file watcher
// ABOUTME: Covers scope parsing, exactly-once rebuilds, failure isolation and fsnotify triggers

package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls atomic.Int32
	err   error
}

func (c *counter) Rebuild(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func newCounters() (map[Scope]Rebuilder, map[Scope]*counter) {
	counters := map[Scope]*counter{Aliases: {}, Scripts: {}, Commands: {}}
	rebuilders := map[Scope]Rebuilder{}
	for s, c := range counters {
		rebuilders[s] = c
	}
	return rebuilders, counters
}

func TestParseScopes(t *testing.T) {
	set, unknown := ParseScopes([]string{"alias", "SCRIPTS", "bogus"})
	assert.Equal(t, []Scope{Aliases, Scripts}, set.Ordered())
	assert.Equal(t, []string{"bogus"}, unknown)

	set, _ = ParseScopes([]string{"commands", "all", "aliases"})
	assert.Equal(t, AllScopes, set.Ordered())

	set, unknown = ParseScopes(nil)
	assert.Empty(t, set.Ordered())
	assert.Empty(t, unknown)
}

func TestReload_EmptyScope(t *testing.T) {
	rebuilders, counters := newCounters()
	o := NewOrchestrator(rebuilders, nil)

	lines, err := o.Reload(context.Background(), ScopeSet{})
	assert.ErrorIs(t, err, ErrNoScope)
	assert.Empty(t, lines)
	for _, c := range counters {
		assert.Zero(t, c.calls.Load())
	}
}

func TestReload_AllRunsEachOnce(t *testing.T) {
	rebuilders, counters := newCounters()
	o := NewOrchestrator(rebuilders, nil)

	set, _ := ParseScopes([]string{"all", "aliases", "commands"})
	lines, err := o.Reload(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, []string{"Aliases reloaded.", "Script parents reloaded.", "Command modules reloaded."}, lines)
	for scope, c := range counters {
		assert.Equal(t, int32(1), c.calls.Load(), scope.String())
	}
}

func TestReload_SingleScope(t *testing.T) {
	rebuilders, counters := newCounters()
	o := NewOrchestrator(rebuilders, nil)

	lines, err := o.Reload(context.Background(), ScopeSet{Scripts: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Script parents reloaded."}, lines)
	assert.Zero(t, counters[Aliases].calls.Load())
	assert.Zero(t, counters[Commands].calls.Load())
}

func TestReload_FailureIsolated(t *testing.T) {
	rebuilders, counters := newCounters()
	counters[Aliases].err = errors.New("db locked")
	o := NewOrchestrator(rebuilders, nil)

	set, _ := ParseScopes([]string{"all"})
	lines, err := o.Reload(context.Background(), set)
	require.Error(t, err)
	assert.ErrorContains(t, err, "db locked")

	assert.Equal(t, []string{
		"Failed to reload aliases: db locked",
		"Script parents reloaded.",
		"Command modules reloaded.",
	}, lines)
	assert.Equal(t, int32(1), counters[Commands].calls.Load())
}

func TestReload_MissingRebuilder(t *testing.T) {
	o := NewOrchestrator(map[Scope]Rebuilder{
		Aliases: RebuildFunc(func(context.Context) error { return nil }),
	}, nil)

	lines, err := o.Reload(context.Background(), ScopeSet{Aliases: true, Commands: true})
	require.Error(t, err)
	assert.Equal(t, "Aliases reloaded.", lines[0])
	assert.Contains(t, lines[1], "Failed to reload commands")
}

func TestWatcher_TriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "behaviors.toml")
	require.NoError(t, os.WriteFile(path, []byte("# v1\n"), 0644))

	var fired atomic.Int32
	w := NewWatcher(path, 20*time.Millisecond, func(context.Context) { fired.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// unrelated files in the same directory are ignored
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)
		_ = os.WriteFile(path, []byte("# v2\n"), 0644)
		return fired.Load() > 0
	}, 3*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "behaviors.toml"), 0, func(context.Context) {}, nil)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
