// Package service supervises the long-running components of the server.
//
// Every listener, watcher and ticker is registered with a Supervisor under
// a unique, case-sensitive name. Operators can list, start, stop and
// restart them at runtime. A service is protected when it was registered
// WithProtected or its name starts with a configured prefix ("core-" by
// default); protected services can be started but never stopped or
// restarted through the control plane. StopAll ignores protection and is
// reserved for process shutdown.
package service
