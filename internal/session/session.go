// ABOUTME: A single live connection bound to at most one actor
// ABOUTME: Serializes writes to the underlying transport and tracks activity

package session

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSessionClosed is returned when sending to a session that has been removed.
var ErrSessionClosed = errors.New("session closed")

// Conn is the transport side of a session. Implementations must allow
// Close to be called concurrently with a blocked read.
type Conn interface {
	Send(msg string) error
	Close() error
	RemoteAddr() net.Addr
}

// Session is one live connection.
type Session struct {
	ID          string
	Transport   string
	RemoteAddr  string
	RemotePort  int
	ConnectedAt time.Time

	conn Conn
	seq  uint64

	actorID      atomic.Int64
	lastActivity atomic.Int64
	closed       atomic.Bool
	sendMu       sync.Mutex
}

// ActorID returns the bound actor, or 0 if the session is not logged in.
func (s *Session) ActorID() int64 {
	return s.actorID.Load()
}

// Bound reports whether an actor is bound to the session.
func (s *Session) Bound() bool {
	return s.actorID.Load() != 0
}

// Send writes one message to the transport.
func (s *Session) Send(msg string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.Send(msg)
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent Touch.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IdleFor returns how long the session has been idle as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Closed reports whether the session has been removed from its directory.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// remotePort extracts the peer port, or 0 if the address has none.
func remotePort(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.String(), tcp.Port
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	return addr.String(), int(ap.Port())
}
