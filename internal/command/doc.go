// Package command parses, authorizes and dispatches operator commands.
//
// A line such as
//
//	@boot/quiet Bob
//	newpassword bob=hunter2
//
// is parsed into an Invocation (name, switches, argument and optional
// second argument after "="). The Dispatcher resolves the name through
// the Registry, falling back to the alias table, checks that the actor's
// capabilities are a superset of the Spec's Required list, and runs the
// handler. Every failure becomes an *Error whose Kind classifies it and
// whose Message is the single line sent back to the invoker. Handler
// panics are recovered and reported as Internal.
//
// The Registry serves an immutable Table. Rebuild reruns the Loader and
// swaps the table atomically, so in-flight dispatches finish against the
// table they started with.
package command
