// Package services implements the client side of the karaoke job backend.
//
// # Auth Gate
//
// [AuthGate] holds the current [models.Session]. It authenticates an access token against
// POST /auth, persists it through a [SessionStore] and acts as an [oauth2.TokenSource], so every
// registry request carries the token as a Bearer header via [oauth2.Transport].
//
// Any 401 seen by any request clears the session and fails the call with
// [shared.ErrSessionExpired]. Listeners registered with [AuthGate.OnExpire] are told, which is
// how the controller stops polling and sends the user back to the login form.
//
// # Job Registry Client
//
// [RegistryClient] wraps the job endpoints:
//   - POST /jobs : submit (validated client-side first, quota checked against the session)
//   - GET /jobs, GET /jobs/{id} : list and inspect
//   - GET /jobs/{id}/instrumentals : review candidates
//   - POST /jobs/{id}/instrumentals/{candidateId}/select : resolve a review
//   - DELETE /jobs?status=error : admin clear
//
// # Error Handling
//
// Every failure is typed so callers can branch with errors.Is:
//   - [shared.ErrNetwork] : transport failure, the request never produced a response
//   - [shared.ErrServer] : the backend answered with an error not covered below
//   - [shared.ErrValidation], [shared.ErrQuotaExceeded], [shared.ErrConflict],
//     [shared.ErrNotReady], [shared.ErrForbidden], [shared.ErrJobNotFound] : specific kinds,
//     decoded from the {"error": {"code", "message"}} envelope or the status code
//
// Context cancellation is returned unchanged and never reported as a network error.
package services
