// ABOUTME: The reload command rebuilds aliases, behavior parents and command modules
// ABOUTME: Each selected scope reports its own line; failures do not stop the others

package admin

import (
	"context"
	"strings"

	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/reload"
	"github.com/2389/coven-keep/internal/store"
)

const reloadUsage = "reload must be accompanied by one or more of the following switches: aliases, scripts, commands, all"

func (h *Handlers) reload(ctx context.Context, inv *command.Invocation) (string, error) {
	scopes, _ := reload.ParseScopes(inv.Switches)
	if len(scopes) == 0 {
		return "", command.Errorf(command.InvalidArgument, reloadUsage)
	}

	lines, err := h.reloader.Reload(ctx, scopes)
	if err != nil {
		h.logger.Warn("reload finished with errors", "actor", inv.Actor.Name, "error", err)
	}

	names := make([]string, 0, len(scopes))
	for _, s := range scopes.Ordered() {
		names = append(names, s.String())
	}
	detail := map[string]any{"scopes": names}
	if err != nil {
		detail["error"] = err.Error()
	}
	h.audit(ctx, inv.Actor, store.AuditReload, "process", "", detail)

	return strings.Join(lines, "\n"), nil
}
