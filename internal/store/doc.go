// Package store holds the client's cache of jobs.
//
// A [Store] is owned by the controller and handed to the poller and the UI by reference. Nothing
// assigns into it directly: every write is a [Mutation] passed to [Store.Apply], which runs under
// the store lock and reports what changed as a [Result].
//
// Mutations:
//   - [Snapshot] : merge one poll cycle (insert, update in place, drop after a grace window)
//   - [Inserted] : a job the backend acknowledged on submit
//   - [SelectionStarted], [SelectionAcked], [SelectionRolledBack] : the optimistic review update
//   - [ErrorsCleared] : the backend removed all jobs in Error
//   - [MarkStale], [ReviewOpened], [RowFailed] : UI-only state
//   - [Reset] : logout
//
// UI-only fields on an [Entry] survive every poll merge. A job touched by a local mutation after a
// poll cycle started is left alone by that cycle, so a slow poll cannot undo an optimistic update.
package store
