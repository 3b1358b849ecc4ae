// ABOUTME: The newpassword command replaces another player's credential
// ABOUTME: Translates credential manager refusals into invoker-facing lines

package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/credential"
)

func (h *Handlers) newPassword(ctx context.Context, inv *command.Invocation) (string, error) {
	if inv.Argument == "" {
		return "", command.Errorf(command.InvalidArgument, "What player's password do you want to change?")
	}
	if !inv.HasSecond {
		return "", command.Errorf(command.InvalidArgument, "Usage: newpassword <player>=<password>")
	}

	out, err := h.credentials.SetCredential(ctx, inv.Actor, inv.Argument, inv.SecondArgument)
	if err != nil {
		return "", credentialFailure(err, inv.Argument)
	}

	h.logger.Info("password set by command", "actor", inv.Actor.Name, "target", out.Target.String(), "notified", out.Notified)
	return fmt.Sprintf("%s - PASSWORD set.", out.Target.Name), nil
}

func credentialFailure(err error, target string) error {
	switch {
	case errors.Is(err, credential.ErrMissingTarget):
		return command.Wrap(command.InvalidArgument, err, "What player's password do you want to change?")
	case errors.Is(err, credential.ErrMissingCredential):
		return command.Wrap(command.InvalidArgument, err, "You must supply a new password.")
	case errors.Is(err, credential.ErrCredentialTooLong):
		return command.Wrap(command.InvalidArgument, err, fmt.Sprintf("Passwords may be at most %d bytes.", credential.MaxCredentialBytes))
	case errors.Is(err, credential.ErrCommitFailed):
		return command.Wrap(command.Internal, err, "The password could not be saved.")
	case errors.Is(err, credential.ErrNotAuthenticatable):
		return command.Wrap(command.InvalidArgument, err, "You can only change passwords on players.")
	case errors.Is(err, credential.ErrSuperuserShielded):
		return command.Wrap(command.SuperuserShielded, err, "You cannot change a superuser's password.")
	case errors.Is(err, credential.ErrNotControlled):
		return command.Wrap(command.NotControlled, err, fmt.Sprintf("You do not control %s.", target))
	default:
		return resolveFailure(err, fmt.Sprintf("No player named '%s' was found.", target))
	}
}
