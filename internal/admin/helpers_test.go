// ABOUTME: Shared fixtures for the privileged command tests
// ABOUTME: Builds a dispatcher over a mock store, a live directory and fake services

package admin

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/behavior"
	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/credential"
	"github.com/2389/coven-keep/internal/reload"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/service"
	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

type fakeConn struct {
	mu     sync.Mutex
	port   int
	sent   []string
	closed bool
}

func (c *fakeConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: c.port}
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeService struct {
	name    string
	running atomic.Bool
	starts  atomic.Int32
	stops   atomic.Int32
}

func (f *fakeService) Name() string  { return f.name }
func (f *fakeService) Running() bool { return f.running.Load() }

func (f *fakeService) Start(ctx context.Context) error {
	f.starts.Add(1)
	f.running.Store(true)
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.running.Store(false)
	return nil
}

type fakeShutdown struct {
	reasons []string
}

func (f *fakeShutdown) RequestShutdown(reason string) {
	f.reasons = append(f.reasons, reason)
}

type harness struct {
	store      *store.MockStore
	sessions   *session.Directory
	services   *service.Supervisor
	telnet     *fakeService
	websocket  *fakeService
	shutdown   *fakeShutdown
	rebuilds   map[reload.Scope]*atomic.Int32
	handlers   *Handlers
	dispatcher *command.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithHasher(t, func(p string) (string, error) { return "hashed:" + p, nil })
}

// newHarnessWithHasher builds a harness whose credential manager uses
// hash; nil keeps the bcrypt default.
func newHarnessWithHasher(t *testing.T, hash credential.Hasher) *harness {
	t.Helper()

	h := &harness{
		store:     store.NewMockStore(),
		sessions:  session.NewDirectory(nil),
		services:  service.NewSupervisor([]string{"core-"}, nil),
		telnet:    &fakeService{name: "core-telnet"},
		websocket: &fakeService{name: "websocket"},
		shutdown:  &fakeShutdown{},
		rebuilds:  make(map[reload.Scope]*atomic.Int32),
	}
	h.telnet.running.Store(true)
	require.NoError(t, h.services.Register(h.telnet))
	require.NoError(t, h.services.Register(h.websocket))

	rebuilders := make(map[reload.Scope]reload.Rebuilder)
	for _, scope := range reload.AllScopes {
		counter := &atomic.Int32{}
		h.rebuilds[scope] = counter
		rebuilders[scope] = reload.RebuildFunc(func(ctx context.Context) error {
			counter.Add(1)
			return nil
		})
	}

	resolver := resolve.New(h.store, h.sessions)
	creds := credential.NewManager(resolver, h.store, h.sessions, nil)
	if hash != nil {
		creds.WithHasher(hash)
	}

	h.handlers = New(Deps{
		Store:       h.store,
		Sessions:    h.sessions,
		Resolver:    resolver,
		Credentials: creds,
		Services:    h.services,
		Reloader:    reload.NewOrchestrator(rebuilders, nil),
		Messages:    behavior.NewCache("", nil),
		Shutdown:    h.shutdown,
	})

	reg, err := command.NewRegistry(h.handlers.Commands, nil)
	require.NoError(t, err)
	h.dispatcher = command.NewDispatcher(reg, nil, nil)
	return h
}

// actor creates a player with the given capabilities.
func (h *harness) actor(t *testing.T, name string, mutate func(a *store.Actor), caps ...auth.Capability) *store.Actor {
	t.Helper()
	a := &store.Actor{
		Name:         name,
		PasswordHash: "hashed:original",
		Player:       true,
		Capabilities: auth.NewCapabilitySet(caps...),
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, h.store.CreateActor(context.Background(), a))
	return a
}

// connect opens a session from port and binds it to a (if non-nil).
func (h *harness) connect(t *testing.T, port int, a *store.Actor) (*session.Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{port: port}
	sess := h.sessions.Add(conn, "telnet")
	if a != nil {
		require.NoError(t, h.sessions.Bind(sess, a.ID))
	}
	return sess, conn
}

func (h *harness) run(t *testing.T, actor *store.Actor, line string) (string, error) {
	t.Helper()
	inv, err := command.Parse(line)
	require.NoError(t, err)
	inv.Actor = actor
	return h.dispatcher.Execute(context.Background(), inv)
}

func (h *harness) audit(t *testing.T) []store.AuditEntry {
	t.Helper()
	entries, err := h.store.ListAuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	return entries
}
