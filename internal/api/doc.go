// Package api hosts the read-only REST handlers for operator access during a
// run. Routes are mounted next to /metrics and /healthz:
//   - GET /api/sessions?status=&limit=&offset= lists sessions of the run.
//   - GET /api/sessions/{session_id} returns one session.
package api
