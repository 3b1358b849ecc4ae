// ABOUTME: Per-connection loop shared by every transport
// ABOUTME: Runs the connect handshake, then feeds each line to the dispatcher

package gateway

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/behavior"
	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

const (
	defaultBanner   = "Welcome. Log in with: connect <name> <password>"
	connectUsage    = "Usage: connect <name> <password>"
	loginFailed     = "Either that player does not exist, or has a different password."
	mustConnect     = "You must connect first. " + connectUsage
	goodbyeNotice   = "Goodbye."
	alreadyLoggedIn = "You are already connected."
)

// lineReader yields one input line per call. It returns an error once the
// transport is closed.
type lineReader func() (string, error)

// serve runs a connection until the transport closes or the session is
// removed. The session is always removed from the directory on return.
// A non-nil actor was authenticated by the transport and is bound before
// the first line is read.
func (g *Gateway) serve(ctx context.Context, conn session.Conn, transport string, read lineReader, actor *store.Actor) {
	sess := g.sessions.Add(conn, transport)
	defer g.sessions.Remove(sess, false, "connection closed")

	if actor != nil {
		if err := g.sessions.Bind(sess, actor.ID); err != nil {
			return
		}
		g.logger.Info("login", "session_id", sess.ID, "actor", actor.String(), "transport", sess.Transport, "method", "token")
		_ = sess.Send(g.behaviors.Message(actor.Parent, behavior.MsgConnect, actor.Name))
	} else {
		banner := g.config.Server.Banner
		if banner == "" {
			banner = defaultBanner
		}
		_ = sess.Send(banner)
	}

	for {
		line, err := read()
		if err != nil {
			if !sess.Closed() {
				g.logger.Debug("connection read ended", "session_id", sess.ID, "error", err)
			}
			return
		}
		if sess.Closed() {
			return
		}
		sess.Touch()

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			g.sessions.Remove(sess, true, goodbyeNotice)
			return
		}

		var reply string
		if !sess.Bound() {
			reply = g.handshake(ctx, sess, line)
		} else {
			reply = g.handleLine(ctx, sess, line)
		}
		if reply != "" && !sess.Closed() {
			_ = sess.Send(reply)
		}
	}
}

// handshake handles a line from a session that is not logged in.
func (g *Gateway) handshake(ctx context.Context, sess *session.Session, line string) string {
	verb, rest := nextWord(line)
	if !strings.EqualFold(verb, "connect") {
		return mustConnect
	}
	// The password is the raw remainder so inner spacing survives.
	name, password := nextWord(rest)
	if name == "" || password == "" {
		return connectUsage
	}

	actor, err := g.authenticate(ctx, name, password)
	if err != nil {
		g.logger.Info("login failed", "session_id", sess.ID, "name", name, "remote_addr", sess.RemoteAddr)
		return loginFailed
	}

	if err := g.sessions.Bind(sess, actor.ID); err != nil {
		if errors.Is(err, session.ErrAlreadyBound) {
			return alreadyLoggedIn
		}
		return ""
	}
	g.logger.Info("login", "session_id", sess.ID, "actor", actor.String(), "transport", sess.Transport)
	return g.behaviors.Message(actor.Parent, behavior.MsgConnect, actor.Name)
}

// nextWord splits s at its first run of whitespace and returns the leading
// word and the remainder with its leading whitespace removed.
func nextWord(s string) (word, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// authenticate checks a name and password. Only players can log in.
func (g *Gateway) authenticate(ctx context.Context, name, password string) (*store.Actor, error) {
	actor, err := g.store.GetActorByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !actor.Player {
		return nil, auth.ErrInvalidCredentials
	}
	if err := auth.CheckPassword(actor.PasswordHash, password); err != nil {
		return nil, err
	}
	return actor, nil
}

// authenticateToken resolves a login token to a player actor.
func (g *Gateway) authenticateToken(ctx context.Context, token string) (*store.Actor, error) {
	if g.tokens == nil {
		return nil, auth.ErrInvalidToken
	}
	id, err := g.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	actor, err := g.store.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Player {
		return nil, auth.ErrInvalidCredentials
	}
	return actor, nil
}

// handleLine runs a command for a logged-in session. The actor is
// reloaded for every line so capability and location changes apply
// immediately.
func (g *Gateway) handleLine(ctx context.Context, sess *session.Session, line string) string {
	actor, err := g.store.GetActor(ctx, sess.ActorID())
	if err != nil {
		g.logger.Warn("session actor could not be loaded", "session_id", sess.ID, "actor_id", sess.ActorID(), "error", err)
		if errors.Is(err, store.ErrNotFound) {
			g.sessions.Remove(sess, true, "Your character no longer exists.")
		}
		return ""
	}
	return g.dispatcher.Dispatch(ctx, actor, sess, line)
}
