// ABOUTME: The boot command forcibly disconnects a player's sessions
// ABOUTME: Supports quiet removal and port-based targeting of a single session

package admin

import (
	"context"
	"fmt"

	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/store"
)

func (h *Handlers) boot(ctx context.Context, inv *command.Invocation) (string, error) {
	if inv.Argument == "" {
		return "", command.Errorf(command.InvalidArgument, "Who would you like to boot?")
	}

	mode := resolve.ByNameOrID
	noMatch := "No name or id match found for booting."
	if inv.HasSwitch("port") {
		mode = resolve.ByPort
		noMatch = "No matches found."
	}

	res, err := h.resolver.Resolve(ctx, inv.Argument, mode)
	if err != nil {
		return "", resolveFailure(err, noMatch)
	}

	// an unbound session found by port has no actor to check
	if res.Actor != nil {
		if err := checkBootable(inv.Actor, res.Actor); err != nil {
			h.logger.Info("boot refused",
				"actor", inv.Actor.Name,
				"target", res.Actor.String(),
				"reason", command.KindOf(err).String(),
			)
			return "", err
		}
	}

	if len(res.Sessions) == 0 {
		return "", command.Errorf(command.NotConnected, "That player is not connected.")
	}

	quiet := inv.HasSwitch("quiet")
	reason := fmt.Sprintf("You have been disconnected by %s.", inv.Actor.Name)

	booted := 0
	ids := make([]string, 0, len(res.Sessions))
	for _, sess := range res.Sessions {
		if h.sessions.Remove(sess, !quiet, reason) {
			booted++
			ids = append(ids, sess.ID)
		}
	}
	if booted == 0 {
		// every session closed on its own while we were resolving
		return "", command.Errorf(command.NotConnected, "That player is not connected.")
	}

	targetName := bootTargetName(res)
	h.logger.Info("player booted",
		"actor", inv.Actor.Name,
		"target", targetName,
		"sessions", booted,
		"quiet", quiet,
		"mode", mode.String(),
	)

	targetType, targetID := "session", ids[0]
	if res.Actor != nil {
		targetType, targetID = "actor", res.Actor.Ref()
	}
	h.audit(ctx, inv.Actor, store.AuditBootSession, targetType, targetID, map[string]any{
		"sessions": ids,
		"quiet":    quiet,
		"mode":     mode.String(),
	})

	if booted == 1 {
		return fmt.Sprintf("You booted %s.", targetName), nil
	}
	return fmt.Sprintf("You booted %s (%d sessions).", targetName, booted), nil
}

// checkBootable applies the target rules shared by name and port modes.
func checkBootable(invoker, target *store.Actor) error {
	if !target.Player {
		return command.Errorf(command.InvalidArgument, "You can only boot players.")
	}
	if target.Superuser {
		return command.Errorf(command.SuperuserShielded, "You cannot boot a superuser.")
	}
	if !invoker.Controls(target) {
		return command.Errorf(command.NotControlled, "You do not have permission to boot that player.")
	}
	return nil
}

func bootTargetName(res *resolve.Result) string {
	if res.Actor != nil {
		return res.Actor.Name
	}
	return fmt.Sprintf("the session on port %d", res.Sessions[0].RemotePort)
}
