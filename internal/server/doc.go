// Package server provides HTTP routing, middleware and a sandbox implementation of the job API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified [http.ServeMux] patterns.
//
// # Sandbox Backend
//
// [Backend] keeps accounts and jobs in memory and serves the same contract as the real service:
//
//	POST   /auth
//	POST   /jobs
//	GET    /jobs
//	GET    /jobs/{id}
//	GET    /jobs/{id}/instrumentals
//	POST   /jobs/{id}/instrumentals/{candidateId}/select
//	DELETE /jobs?status=error
//
// Errors use the {"error": {"code", "message"}} envelope. Jobs only move when [Backend.Advance] is
// called, either by a test or by the ticker in [Serve], which makes every lifecycle path scriptable:
// [Backend.Fail], [Backend.Resolve] (another session wins the review), [Backend.FailNextLists]
// (outage) and [Backend.HideNextLists] (transient inconsistency).
//
// The dev-server command runs it on localhost so the dashboard can be exercised without the real
// pipeline.
package server
