// ABOUTME: The service command lists, starts, stops and restarts supervised services
// ABOUTME: Service names are case-sensitive and protected services refuse stop

package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/service"
	"github.com/2389/coven-keep/internal/store"
)

const listingRule = "----------------------------------------"

func (h *Handlers) service(ctx context.Context, inv *command.Invocation) (string, error) {
	if len(inv.Switches) == 0 {
		return "", command.Errorf(command.InvalidArgument,
			"You must specify a switch with service. May be one of: list, start, stop, restart")
	}

	op := inv.Switches[0]
	if op == "list" {
		return h.serviceListing(), nil
	}

	name := strings.TrimSpace(inv.Argument)
	if name == "" {
		return "", command.Errorf(command.InvalidArgument, "You must specify a service name. See service/list.")
	}

	var (
		err    error
		reply  string
		action store.AuditAction
	)
	switch op {
	case "start":
		err = h.services.Start(ctx, name)
		reply, action = fmt.Sprintf("Starting the %s service.", name), store.AuditServiceStart
	case "stop":
		err = h.services.Stop(ctx, name)
		reply, action = fmt.Sprintf("Stopping the %s service.", name), store.AuditServiceStop
	case "restart":
		err = h.services.Restart(ctx, name)
		reply, action = fmt.Sprintf("Restarting the %s service.", name), store.AuditServiceRestart
	}
	if err != nil {
		return "", serviceFailure(err, op, name)
	}

	h.logger.Info("service changed by command", "actor", inv.Actor.Name, "service", name, "op", op)
	h.audit(ctx, inv.Actor, action, "service", name, nil)
	return reply, nil
}

func (h *Handlers) serviceListing() string {
	var b strings.Builder
	b.WriteString(listingRule)
	b.WriteString("\nService Listing\n")
	for _, st := range h.services.List() {
		fmt.Fprintf(&b, " * %s (%s)\n", st.Name, st.State())
	}
	b.WriteString(listingRule)
	return b.String()
}

func serviceFailure(err error, op, name string) error {
	switch {
	case errors.Is(err, service.ErrUnknownService):
		return command.Wrap(command.UnknownService, err,
			"Invalid service name. This command is case-sensitive. See service/list.")
	case errors.Is(err, service.ErrProtectedService):
		return command.Wrap(command.ProtectedResource, err,
			fmt.Sprintf("You can not %s core services this way.", op))
	case errors.Is(err, service.ErrAlreadyRunning):
		return command.Wrap(command.AlreadyInState, err, "That service is already running.")
	case errors.Is(err, service.ErrNotRunning):
		return command.Wrap(command.AlreadyInState, err, "That service is not currently running.")
	default:
		return command.Wrap(command.Internal, err, fmt.Sprintf("The %s service failed to %s: %v", name, op, err))
	}
}
