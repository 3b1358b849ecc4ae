// Package admin implements the privileged operator commands.
//
// # Commands
//
//   - reload/aliases|scripts|commands|all (process-control)
//   - boot[/quiet][/port] <player|#id|port> (manage-players)
//   - newpassword <player>=<password> (manage-players)
//   - home (teleport-anywhere)
//   - service/list, service/start|stop|restart <name> (process-control)
//   - shutdown (process-control)
//   - sessions (manage-players)
//
// Handlers is the command.Loader for the registry: each call to Commands
// returns fresh specs bound to the shared dependencies.
//
// # Errors
//
// Handlers never return raw errors for expected failures. Sentinel errors
// from the resolver, supervisor and credential manager are translated to
// *command.Error values carrying the line the invoker sees.
//
// # Audit
//
// Successful boots, credential changes, service transitions, reloads and
// shutdowns append an audit entry. A failed audit write is logged and
// does not fail the command.
package admin
