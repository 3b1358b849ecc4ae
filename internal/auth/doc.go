// Package auth holds the permission primitives of the control plane.
//
// # Capabilities
//
// Permissions are flat capability strings. An actor may run a command when
// its capability set is a superset of the command's requirements:
//
//	actor.Capabilities.Satisfies([]auth.Capability{auth.ProcessControl})
//
// There is no hierarchy and no implication between capabilities. Being a
// superuser does not grant capabilities; superusers are created with every
// known capability by `keep adduser --superuser`.
//
// # Credentials
//
// HashPassword and CheckPassword wrap bcrypt with the default cost.
//
// # Login tokens
//
// Tokens issues HS256 JWTs naming an actor id. The WebSocket transport
// accepts one in place of the connect handshake; `keep token` mints them.
package auth
