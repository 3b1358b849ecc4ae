// ABOUTME: The home command moves the invoker to their home location
// ABOUTME: The departure line comes from the invoker's behavior parent

package admin

import (
	"context"

	"github.com/2389/coven-keep/internal/behavior"
	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/store"
)

func (h *Handlers) home(ctx context.Context, inv *command.Invocation) (string, error) {
	actor := inv.Actor
	if !actor.HasHome() {
		return "", command.Errorf(command.InvalidArgument, "You have no home set, @link yourself to somewhere.")
	}

	if err := h.store.MoveActor(ctx, actor.ID, actor.Home); err != nil {
		return "", command.Wrap(command.Internal, err, "You could not be moved home.")
	}
	from := actor.Location
	actor.Location = actor.Home

	h.audit(ctx, actor, store.AuditTeleportHome, "actor", actor.Ref(), map[string]any{
		"from": from,
		"to":   actor.Home,
	})

	if h.messages == nil {
		return behavior.Defaults[behavior.MsgHome], nil
	}
	return h.messages.Message(actor.Parent, behavior.MsgHome, actor.Name), nil
}
