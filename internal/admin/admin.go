// ABOUTME: Wiring for the privileged command handlers and their command specs
// ABOUTME: Shared helpers translate resolver errors and append audit entries

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/credential"
	"github.com/2389/coven-keep/internal/reload"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/service"
	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

// Store is the persistence the handlers need.
type Store interface {
	GetActor(ctx context.Context, id int64) (*store.Actor, error)
	MoveActor(ctx context.Context, id int64, location int64) error
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// Reloader rebuilds caches by scope.
type Reloader interface {
	Reload(ctx context.Context, scopes reload.ScopeSet) ([]string, error)
}

// Messages renders behavior-parent messages.
type Messages interface {
	Message(parent, key, name string) string
}

// Shutdowner begins a graceful process stop. It must not block.
type Shutdowner interface {
	RequestShutdown(reason string)
}

// Deps holds everything the handlers act on.
type Deps struct {
	Store       Store
	Sessions    *session.Directory
	Resolver    *resolve.Resolver
	Credentials *credential.Manager
	Services    *service.Supervisor
	Reloader    Reloader
	Messages    Messages
	Shutdown    Shutdowner
	Logger      *slog.Logger
}

// Handlers implements the privileged commands.
type Handlers struct {
	store       Store
	sessions    *session.Directory
	resolver    *resolve.Resolver
	credentials *credential.Manager
	services    *service.Supervisor
	reloader    Reloader
	messages    Messages
	shutdown    Shutdowner
	logger      *slog.Logger
}

// New creates Handlers from deps.
func New(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:       deps.Store,
		sessions:    deps.Sessions,
		resolver:    deps.Resolver,
		credentials: deps.Credentials,
		services:    deps.Services,
		reloader:    deps.Reloader,
		messages:    deps.Messages,
		shutdown:    deps.Shutdown,
		logger:      logger.With("component", "admin"),
	}
}

// Commands returns the privileged command specs. It satisfies
// command.Loader so the registry can rebuild from it.
func (h *Handlers) Commands() ([]command.Spec, error) {
	return []command.Spec{
		{
			Name:       "reload",
			Switches:   []string{"aliases", "alias", "scripts", "script", "commands", "command", "all"},
			Required:   []auth.Capability{auth.ProcessControl},
			Usage:      "reload/<aliases|scripts|commands|all>",
			SwitchHelp: reloadUsage,
			Handler:    h.reload,
		},
		{
			Name:     "boot",
			Switches: []string{"quiet", "port"},
			Required: []auth.Capability{auth.ManagePlayers},
			Usage:    "boot[/quiet][/port] <player>",
			Handler:  h.boot,
		},
		{
			Name:     "newpassword",
			Required: []auth.Capability{auth.ManagePlayers},
			Usage:    "newpassword <player>=<password>",
			Handler:  h.newPassword,
		},
		{
			Name:     "home",
			Required: []auth.Capability{auth.TeleportAnywhere},
			Usage:    "home",
			Handler:  h.home,
		},
		{
			Name:     "service",
			Switches: []string{"list", "start", "stop", "restart"},
			Required: []auth.Capability{auth.ProcessControl},
			Usage:    "service/list, service/<start|stop|restart> <name>",
			Handler:  h.service,
		},
		{
			Name:     "shutdown",
			Required: []auth.Capability{auth.ProcessControl},
			Usage:    "shutdown",
			Handler:  h.shutdownServer,
		},
		{
			Name:     "sessions",
			Required: []auth.Capability{auth.ManagePlayers},
			Usage:    "sessions",
			Handler:  h.listSessions,
		},
	}, nil
}

// resolveFailure converts a resolver error to a command error.
// noMatch is the line used when nothing matched.
func resolveFailure(err error, noMatch string) error {
	var amb *resolve.AmbiguousError
	switch {
	case errors.As(err, &amb):
		names := make([]string, len(amb.Matches))
		for i, a := range amb.Matches {
			names[i] = a.String()
		}
		return command.Wrap(command.AmbiguousMatch, err,
			fmt.Sprintf("I don't know which '%s' you mean: %s.", amb.Query, strings.Join(names, ", ")))
	case errors.Is(err, resolve.ErrNoMatch):
		return command.Wrap(command.NoMatch, err, noMatch)
	case errors.Is(err, resolve.ErrInvalidPort):
		return command.Wrap(command.InvalidArgument, err, "That is not a valid port number.")
	case errors.Is(err, resolve.ErrEmptyTarget):
		return command.Wrap(command.InvalidArgument, err, "You must name a target.")
	default:
		return command.Wrap(command.Internal, err, "Lookup failed, try again later.")
	}
}

// audit appends an entry for a successful privileged action.
func (h *Handlers) audit(ctx context.Context, actor *store.Actor, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := h.store.AppendAuditLog(ctx, entry); err != nil {
		h.logger.Warn("failed to write audit log",
			"action", action,
			"actor", actor.Name,
			"error", err,
		)
	}
}
