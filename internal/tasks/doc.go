// Package tasks coordinates the job lifecycle between the registry, the store and the UIs.
//
// # Components
//
//  1. [Poller] : serialized refresh cycles on an interval
//     - Each cycle lists jobs and merges them into the [store.Store] as a [store.Snapshot]
//     - Failures keep the cache, mark it stale and back off exponentially up to a cap
//     - The first success resets the cadence; a session expiry stops the loop
//
//  2. [Flights] : at most one mutation per job id
//     - Jobs with a mutation in flight are left out of poll merges
//
//  3. [Controller] : the only place that issues mutating calls
//     - Submit, SelectInstrumental, ClearErrors, Login, Logout
//     - A session epoch discards results that arrive after a logout or expiry
//
//  4. [Review] : Hidden → Loading → Presenting → Submitting → Resolved
//     - Closing cancels the candidate fetch; late results are discarded
//     - Conflicts return to Presenting and require a reload before confirming again
//
//  5. [Controller.BulkSubmit] : submit a batch of jobs from a manifest with a worker pool
//
// # Events
//
// The controller reports what happens through a buffered [Event] channel. Sends use select with
// default so a slow consumer never blocks a poll cycle; UIs re-read the store on every event
// anyway, so a dropped event only loses its message.
package tasks
