// Package gateway is the composition root of the keep server.
//
// # Overview
//
// New opens the SQLite store and wires every component around it: the
// session directory, the service supervisor, the alias table, the
// behavior cache, the command registry and dispatcher, the reload
// orchestrator and the privileged command handlers.
//
// # Services
//
// The gateway registers these services with the supervisor:
//
//   - core-telnet: line-oriented TCP listener (protected)
//   - websocket: the same session loop over WebSocket at /ws
//   - grpc-health: grpc.health.v1 with per-service status
//   - idle-reaper: disconnects sessions idle past sessions.idle_timeout
//   - behavior-watcher: reloads the behavior file when it changes
//
// Optional services are registered only when configured.
//
// # Sessions
//
// Every connection starts unauthenticated. The only accepted input is
//
//	connect <name> <password>
//
// after which each line is dispatched as a command for the bound actor.
// "quit" ends the session at any time.
//
// # Tailscale
//
// With tailscale.enabled the transports listen on a tsnet node instead of
// the host network; only the port of each configured address is used.
// The health service always listens on plain TCP.
//
// # Shutdown
//
// Run returns after its context is cancelled or a shutdown command is
// issued. Shutdown stops every service, disconnects every session with a
// notice and closes the store.
package gateway
