// ABOUTME: Capability gate coverage for every privileged command
// ABOUTME: A refused invocation must leave sessions, services, credentials, caches and the audit log untouched

package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/command"
	"github.com/2389/coven-keep/internal/reload"
	"github.com/2389/coven-keep/internal/store"
)

// deniedLines holds, per command, a line that would change state if the
// capability gate let it through.
var deniedLines = map[string]string{
	"reload":      "reload/all",
	"boot":        "boot Bob",
	"newpassword": "newpassword Bob=changed",
	"home":        "home",
	"service":     "service/stop websocket",
	"shutdown":    "shutdown",
	"sessions":    "sessions",
}

func TestCommands_MissingCapabilityChangesNothing(t *testing.T) {
	specs, err := newHarness(t).handlers.Commands()
	require.NoError(t, err)

	for _, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			require.NotEmpty(t, spec.Required, "every admin command is gated")
			line, ok := deniedLines[spec.Name]
			require.True(t, ok, "no refused line for %s", spec.Name)

			h := newHarness(t)
			h.websocket.running.Store(true)
			bob := h.actor(t, "Bob", nil)
			_, bobConn := h.connect(t, 5001, bob)

			// holds every capability except the ones this command needs
			var granted []auth.Capability
			for _, c := range auth.Known {
				if !auth.NewCapabilitySet(spec.Required...).Has(c) {
					granted = append(granted, c)
				}
			}
			mallory := h.actor(t, "Mallory", func(a *store.Actor) {
				a.Rank = 9
				a.Home = 42
				a.Location = 7
			}, granted...)
			_, malloryConn := h.connect(t, 5002, mallory)

			_, err := h.run(t, mallory, line)
			require.Error(t, err)
			assert.Equal(t, command.PermissionDenied, command.KindOf(err))

			assert.True(t, h.sessions.Connected(bob.ID))
			assert.False(t, bobConn.isClosed())
			assert.Empty(t, bobConn.messages())
			assert.False(t, malloryConn.isClosed())
			assert.Equal(t, 2, h.sessions.Count())

			assert.True(t, h.websocket.Running())
			assert.Zero(t, h.websocket.stops.Load())
			assert.True(t, h.telnet.Running())
			assert.Zero(t, h.telnet.stops.Load())

			assert.Equal(t, "hashed:original", storedHash(t, h, bob.ID))
			stored, err := h.store.GetActor(context.Background(), mallory.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(7), stored.Location)

			assert.Equal(t, map[reload.Scope]int32{reload.Aliases: 0, reload.Scripts: 0, reload.Commands: 0}, h.rebuildCounts())
			assert.Empty(t, h.shutdown.reasons)
			assert.Empty(t, h.audit(t))
		})
	}
}
