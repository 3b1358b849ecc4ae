// ABOUTME: Routes parsed invocations to handlers behind the capability check
// ABOUTME: Converts every failure, including handler panics, into one reply line

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

// AliasResolver expands alias names.
type AliasResolver interface {
	Resolve(name string) (string, bool)
}

// Dispatcher executes command lines for actors.
type Dispatcher struct {
	registry *Registry
	aliases  AliasResolver
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. aliases may be nil.
func NewDispatcher(registry *Registry, aliases AliasResolver, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		aliases:  aliases,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch parses and runs a raw line and returns the reply text.
// An empty line yields an empty reply.
func (d *Dispatcher) Dispatch(ctx context.Context, actor *store.Actor, sess *session.Session, raw string) string {
	inv, err := Parse(raw)
	if err != nil {
		return ""
	}
	inv.Actor = actor
	inv.Session = sess

	reply, err := d.Execute(ctx, inv)
	if err != nil {
		return MessageOf(err)
	}
	return reply
}

// Execute runs a parsed invocation. Returned errors always wrap an *Error.
func (d *Dispatcher) Execute(ctx context.Context, inv *Invocation) (reply string, err error) {
	spec, ok := d.registry.Lookup(inv.Name)
	if !ok && d.aliases != nil {
		if target, found := d.aliases.Resolve(inv.Name); found {
			inv.expandAlias(target)
			spec, ok = d.registry.Lookup(inv.Name)
		}
	}
	if !ok {
		return "", Errorf(UnknownCommand, "Huh? Unknown command: %s", inv.Name)
	}

	actorName := ""
	if inv.Actor != nil {
		actorName = inv.Actor.Name
	}

	if inv.Actor == nil || !inv.Actor.Capabilities.Satisfies(spec.Required) {
		d.logger.Info("command denied",
			"command", spec.Name,
			"actor", actorName,
			"required", spec.Required,
		)
		return "", Errorf(PermissionDenied, "You do not have permission to use %s.", spec.Name)
	}

	if bad := unknownSwitches(spec, inv.Switches); len(bad) > 0 {
		if spec.SwitchHelp != "" {
			return "", Errorf(InvalidArgument, "%s", spec.SwitchHelp)
		}
		msg := fmt.Sprintf("Unknown switch for %s: %s.", spec.Name, strings.Join(bad, ", "))
		if len(spec.Switches) > 0 {
			msg += fmt.Sprintf(" Valid switches: %s.", strings.Join(spec.Switches, ", "))
		}
		return "", Errorf(InvalidArgument, "%s", msg)
	}

	d.logger.Debug("dispatching command",
		"command", spec.Name,
		"switches", inv.Switches,
		"actor", actorName,
	)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				"command", spec.Name,
				"actor", actorName,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			reply = ""
			err = Wrap(Internal, fmt.Errorf("panic: %v", r), fmt.Sprintf("An internal error occurred while running %s.", spec.Name))
		}
	}()

	reply, err = spec.Handler(ctx, inv)
	if err != nil {
		if KindOf(err) == Internal {
			d.logger.Error("command failed", "command", spec.Name, "actor", actorName, "error", err)
			var ce *Error
			if !errors.As(err, &ce) {
				err = Wrap(Internal, err, fmt.Sprintf("An internal error occurred while running %s.", spec.Name))
			}
		}
		return "", err
	}
	return reply, nil
}

func unknownSwitches(spec *Spec, given []string) []string {
	var bad []string
	for _, sw := range given {
		known := false
		for _, allowed := range spec.Switches {
			if sw == allowed {
				known = true
				break
			}
		}
		if !known {
			bad = append(bad, sw)
		}
	}
	return bad
}
