// ABOUTME: Tests for the session directory
// ABOUTME: Covers binding, snapshots, atomic removal, notification and idle reaping

package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	addr   net.Addr
	sent   []string
	closed bool
	onSend func()
}

func newFakeConn(port int) *fakeConn {
	return &fakeConn{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}}
}

func (c *fakeConn) Send(msg string) error {
	if c.onSend != nil {
		c.onSend()
	}
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

func (c *fakeConn) RemoteAddr() net.Addr { return c.addr }

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

func TestDirectory_AddAndList(t *testing.T) {
	d := NewDirectory(nil)

	s1 := d.Add(newFakeConn(5001), "telnet")
	s2 := d.Add(newFakeConn(5002), "websocket")
	s3 := d.Add(newFakeConn(5003), "telnet")

	assert.Equal(t, 5001, s1.RemotePort)
	assert.Equal(t, "127.0.0.1:5001", s1.RemoteAddr)
	assert.NotEmpty(t, s1.ID)
	assert.False(t, s1.Bound())

	list := d.List()
	require.Len(t, list, 3)
	assert.Equal(t, []*Session{s1, s2, s3}, list, "connect order")
	assert.Equal(t, 3, d.Count())

	got, ok := d.Get(s2.ID)
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestDirectory_BindAndSessionsFor(t *testing.T) {
	d := NewDirectory(nil)
	a1 := d.Add(newFakeConn(1), "telnet")
	a2 := d.Add(newFakeConn(2), "telnet")
	b1 := d.Add(newFakeConn(3), "telnet")

	require.NoError(t, d.Bind(a1, 10))
	require.NoError(t, d.Bind(a2, 10))
	require.NoError(t, d.Bind(b1, 20))

	assert.ErrorIs(t, d.Bind(a1, 30), ErrAlreadyBound)

	assert.Equal(t, []*Session{a1, a2}, d.SessionsFor(10))
	assert.Equal(t, []*Session{b1}, d.SessionsFor(20))
	assert.Empty(t, d.SessionsFor(99))
	assert.True(t, d.Connected(10))
	assert.False(t, d.Connected(99))
}

func TestDirectory_BindRemovedSession(t *testing.T) {
	d := NewDirectory(nil)
	s := d.Add(newFakeConn(1), "telnet")
	require.True(t, d.Remove(s, false, ""))

	assert.ErrorIs(t, d.Bind(s, 10), ErrSessionNotFound)
}

func TestDirectory_Remove(t *testing.T) {
	d := NewDirectory(nil)
	conn := newFakeConn(1)
	s := d.Add(conn, "telnet")
	require.NoError(t, d.Bind(s, 10))

	removed := d.Remove(s, true, "You have been disconnected by Wizard.")
	assert.True(t, removed)

	assert.Equal(t, []string{"You have been disconnected by Wizard."}, conn.messages())
	assert.True(t, conn.isClosed())
	assert.True(t, s.Closed())
	assert.Empty(t, d.List())
	assert.Empty(t, d.SessionsFor(10))
	assert.False(t, d.Connected(10))

	// second removal is a no-op
	assert.False(t, d.Remove(s, true, "again"))
	assert.Len(t, conn.messages(), 1)

	assert.ErrorIs(t, s.Send("late"), ErrSessionClosed)
}

func TestDirectory_RemoveQuiet(t *testing.T) {
	d := NewDirectory(nil)
	conn := newFakeConn(1)
	s := d.Add(conn, "telnet")

	require.True(t, d.Remove(s, false, "ignored"))
	assert.Empty(t, conn.messages())
	assert.True(t, conn.isClosed())
}

func TestDirectory_RemoveHidesSessionBeforeNotify(t *testing.T) {
	d := NewDirectory(nil)
	conn := newFakeConn(1)
	s := d.Add(conn, "telnet")
	require.NoError(t, d.Bind(s, 10))

	var visibleDuringNotify bool
	conn.onSend = func() {
		_, visibleDuringNotify = d.Get(s.ID)
	}

	d.Remove(s, true, "bye")
	assert.False(t, visibleDuringNotify, "session must not be listed while it is being closed")
}

func TestDirectory_ConcurrentRemove(t *testing.T) {
	d := NewDirectory(nil)
	conn := newFakeConn(1)
	s := d.Add(conn, "telnet")

	var wg sync.WaitGroup
	results := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- d.Remove(s, true, "bye")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for r := range results {
		if r {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, []string{"bye"}, conn.messages())
}

func TestDirectory_SendToActor(t *testing.T) {
	d := NewDirectory(nil)
	c1, c2, c3 := newFakeConn(1), newFakeConn(2), newFakeConn(3)
	s1 := d.Add(c1, "telnet")
	s2 := d.Add(c2, "telnet")
	s3 := d.Add(c3, "telnet")
	require.NoError(t, d.Bind(s1, 10))
	require.NoError(t, d.Bind(s2, 10))
	require.NoError(t, d.Bind(s3, 20))

	assert.Equal(t, 2, d.SendToActor(10, "hello"))
	assert.Equal(t, []string{"hello"}, c1.messages())
	assert.Equal(t, []string{"hello"}, c2.messages())
	assert.Empty(t, c3.messages())
}

func TestDirectory_RemoveAll(t *testing.T) {
	d := NewDirectory(nil)
	c1, c2 := newFakeConn(1), newFakeConn(2)
	d.Add(c1, "telnet")
	d.Add(c2, "telnet")

	assert.Equal(t, 2, d.RemoveAll("The server is shutting down."))
	assert.Equal(t, 0, d.Count())
	assert.Equal(t, []string{"The server is shutting down."}, c1.messages())
	assert.True(t, c2.isClosed())
}

func TestDirectory_ReapIdle(t *testing.T) {
	d := NewDirectory(nil)
	idleConn, activeConn := newFakeConn(1), newFakeConn(2)
	idle := d.Add(idleConn, "telnet")
	active := d.Add(activeConn, "telnet")

	now := time.Now()
	idle.lastActivity.Store(now.Add(-2 * time.Hour).UnixNano())
	active.Touch()

	assert.Equal(t, 0, d.ReapIdle(0, now, "idle"), "zero timeout disables reaping")

	reaped := d.ReapIdle(time.Hour, now, "Idle timeout exceeded, disconnecting.")
	assert.Equal(t, 1, reaped)
	assert.True(t, idleConn.isClosed())
	assert.Equal(t, []string{"Idle timeout exceeded, disconnecting."}, idleConn.messages())
	assert.False(t, activeConn.isClosed())
	assert.Equal(t, []*Session{active}, d.List())
}

func TestRemotePort(t *testing.T) {
	addr, port := remotePort(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 9000})
	assert.Equal(t, "[::1]:9000", addr)
	assert.Equal(t, 9000, port)

	_, port = remotePort(nil)
	assert.Equal(t, 0, port)
}
