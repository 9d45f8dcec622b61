// Package frame implements the live frame registry.
//
// A Tree tracks frames by identifier together with their parent/child
// relations and the current root. Frames arrive and leave in whatever
// order the lifecycle source reports them, so a child may reference a
// parent that is not registered yet, and lookups always report absence
// instead of failing.
//
// Callers that know an identifier before the frame exists can block on it
// with WaitFor, or hold a Waiter returned by Wait. Every Add resolves all
// waiters registered for its identifier.
package frame
