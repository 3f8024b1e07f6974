// Package repositories implements the client's local SQLite persistence.
//
// Two things survive a restart:
//   - [SessionRepository] : the single persisted session, so the client can silently
//     re-authenticate before showing any UI
//   - [JobSnapshotRepository] : the last job list a successful poll produced, listed offline
//     when the backend cannot be reached
//
// Neither table is authoritative. The backend owns the job registry; these rows are a cache.
package repositories
