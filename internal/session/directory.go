// ABOUTME: Registry of live sessions indexed by session ID and bound actor
// ABOUTME: Removal is atomic: a session is never listed once it has begun closing

package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates the session is not (or no longer) in the directory.
var ErrSessionNotFound = errors.New("session not found")

// ErrAlreadyBound indicates the session is already bound to an actor.
var ErrAlreadyBound = errors.New("session already bound to an actor")

// Directory tracks every live session.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byActor  map[int64]map[string]*Session
	nextSeq  uint64
	logger   *slog.Logger
}

// NewDirectory creates an empty Directory.
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		sessions: make(map[string]*Session),
		byActor:  make(map[int64]map[string]*Session),
		logger:   logger.With("component", "sessions"),
	}
}

// Add registers a new, unbound session for conn.
func (d *Directory) Add(conn Conn, transport string) *Session {
	addr, port := remotePort(conn.RemoteAddr())
	now := time.Now()
	sess := &Session{
		ID:          uuid.New().String(),
		Transport:   transport,
		RemoteAddr:  addr,
		RemotePort:  port,
		ConnectedAt: now,
		conn:        conn,
	}
	sess.lastActivity.Store(now.UnixNano())

	d.mu.Lock()
	d.nextSeq++
	sess.seq = d.nextSeq
	d.sessions[sess.ID] = sess
	total := len(d.sessions)
	d.mu.Unlock()

	d.logger.Info("=== SESSION CONNECTED ===",
		"session_id", sess.ID,
		"transport", transport,
		"remote", addr,
		"total_sessions", total,
	)
	return sess
}

// Bind attaches an actor to a session.
func (d *Directory) Bind(sess *Session, actorID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	if sess.Bound() {
		return ErrAlreadyBound
	}

	sess.actorID.Store(actorID)
	set, ok := d.byActor[actorID]
	if !ok {
		set = make(map[string]*Session)
		d.byActor[actorID] = set
	}
	set[sess.ID] = sess

	d.logger.Info("session bound", "session_id", sess.ID, "actor_id", actorID, "actor_sessions", len(set))
	return nil
}

// Get returns the session with the given ID.
func (d *Directory) Get(id string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sess, ok := d.sessions[id]
	return sess, ok
}

// List returns a snapshot of every session in connect order.
func (d *Directory) List() []*Session {
	d.mu.RLock()
	out := make([]*Session, 0, len(d.sessions))
	for _, sess := range d.sessions {
		out = append(out, sess)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// SessionsFor returns a snapshot of the actor's sessions in connect order.
func (d *Directory) SessionsFor(actorID int64) []*Session {
	d.mu.RLock()
	set := d.byActor[actorID]
	out := make([]*Session, 0, len(set))
	for _, sess := range set {
		out = append(out, sess)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Connected reports whether the actor has at least one live session.
func (d *Directory) Connected(actorID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byActor[actorID]) > 0
}

// Count returns the number of live sessions.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// SendToActor delivers msg to every session of the actor and returns how
// many sends succeeded.
func (d *Directory) SendToActor(actorID int64, msg string) int {
	sent := 0
	for _, sess := range d.SessionsFor(actorID) {
		if err := sess.Send(msg); err != nil {
			d.logger.Debug("send to actor failed", "session_id", sess.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Remove takes a session out of the directory and closes its transport.
// When notify is set, reason is sent to the session before it is closed.
// Returns false if the session was already removed.
func (d *Directory) Remove(sess *Session, notify bool, reason string) bool {
	d.mu.Lock()
	if _, ok := d.sessions[sess.ID]; !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.sessions, sess.ID)
	if actorID := sess.ActorID(); actorID != 0 {
		if set, ok := d.byActor[actorID]; ok {
			delete(set, sess.ID)
			if len(set) == 0 {
				delete(d.byActor, actorID)
			}
		}
	}
	total := len(d.sessions)
	d.mu.Unlock()

	// transport I/O happens outside the lock
	if notify && reason != "" {
		if err := sess.Send(reason); err != nil {
			d.logger.Debug("disconnect notice not delivered", "session_id", sess.ID, "error", err)
		}
	}
	sess.closed.Store(true)
	if err := sess.conn.Close(); err != nil {
		d.logger.Debug("closing session transport", "session_id", sess.ID, "error", err)
	}

	d.logger.Info("=== SESSION DISCONNECTED ===",
		"session_id", sess.ID,
		"actor_id", sess.ActorID(),
		"reason", reason,
		"total_sessions", total,
	)
	return true
}

// RemoveAll disconnects every session, notifying each with reason.
func (d *Directory) RemoveAll(reason string) int {
	removed := 0
	for _, sess := range d.List() {
		if d.Remove(sess, reason != "", reason) {
			removed++
		}
	}
	return removed
}

// ReapIdle disconnects every session idle for longer than timeout.
func (d *Directory) ReapIdle(timeout time.Duration, now time.Time, reason string) int {
	if timeout <= 0 {
		return 0
	}
	reaped := 0
	for _, sess := range d.List() {
		if sess.IdleFor(now) <= timeout {
			continue
		}
		if d.Remove(sess, true, reason) {
			reaped++
		}
	}
	return reaped
}
