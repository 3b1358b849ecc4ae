// ABOUTME: The shutdown command and the live session listing
// ABOUTME: Shutdown replies first; the stop itself runs asynchronously

package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/store"
)

func (h *Handlers) shutdownServer(ctx context.Context, inv *command.Invocation) (string, error) {
	if h.shutdown == nil {
		return "", command.Errorf(command.Internal, "Shutdown is not available.")
	}

	h.logger.Warn("server shutdown requested", "actor", inv.Actor.Name, "actor_id", inv.Actor.ID)
	h.audit(ctx, inv.Actor, store.AuditShutdown, "process", "", nil)
	h.shutdown.RequestShutdown(fmt.Sprintf("shutdown by %s", inv.Actor.Name))
	return "Shutting down...", nil
}

func (h *Handlers) listSessions(ctx context.Context, inv *command.Invocation) (string, error) {
	now := time.Now()
	names := make(map[int64]string)

	var b strings.Builder
	b.WriteString(listingRule)
	b.WriteString("\nSession Listing\n")
	for _, sess := range h.sessions.List() {
		who := "(not logged in)"
		if id := sess.ActorID(); id != 0 {
			name, ok := names[id]
			if !ok {
				name = fmt.Sprintf("#%d", id)
				if a, err := h.store.GetActor(ctx, id); err == nil {
					name = a.String()
				}
				names[id] = name
			}
			who = name
		}
		fmt.Fprintf(&b, " * %s %s %s port %d idle %s\n",
			shortID(sess.ID), who, sess.Transport, sess.RemotePort,
			sess.IdleFor(now).Truncate(time.Second))
	}
	fmt.Fprintf(&b, "%d connected\n", h.sessions.Count())
	b.WriteString(listingRule)
	return b.String(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
