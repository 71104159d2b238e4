// Package services implements the business logic layer of the filter search
// server. It sits between the HTTP handlers and the search engine.
//
// # Available Services
//
//   - SearchService: queues filter searches, runs at most MaxConcurrent at a
//     time, keeps their state in a SearchStore and writes their reports
//   - HealthService: liveness, readiness and system statistics
//
// # Search Lifecycle
//
// A search is queued, then running, then completed, failed or cancelled.
// Configuration errors are returned by Start before a job exists. Failures
// of the engine itself end the job as failed with the problem type the HTTP
// layer would use, so clients polling a job see the same error vocabulary as
// synchronous callers.
//
// Progress snapshots are stored on the job and forwarded to a
// ProgressBroadcaster, which the server backs with the websocket hub.
//
// # Testing
//
// Services take their collaborators as constructor arguments. Tests use a
// temporary reports directory and a recording broadcaster.
package services
