// Package models defines the client-side domain model for karaoke conversion jobs.
//
// The package contains three groups of types:
//
// 1. Job data mirrored from the backend registry
//   - [Job] : one audio-to-karaoke conversion request, as last observed
//   - [Source] : where the audio comes from (uploaded file or YouTube URL)
//   - [Candidate] : a generated instrumental track offered for review
//
// 2. Lifecycle
//   - [State] : the closed set of lifecycle states, with an explicit [Unknown] arm
//   - [DeriveState] : the total mapping from raw backend status vocabulary to [State]
//
// 3. Session and submission
//   - [Session] : the authenticated access token with tier and usage counters
//   - [JobSpec] : user input for a new job, validated before submission
//
// Nothing in this package performs I/O. The registry client builds [Job] values from wire records
// and the store is the only place that mutates them afterwards.
package models
