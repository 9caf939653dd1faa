// Package status exposes the consumer state over HTTP.
//
// # HTTP Endpoints
//
//   - GET /healthz : Liveness probe. Always public.
//   - GET /status : Controller counters and the last settled batch.
//   - GET /status/failures : Recent failed keys from the ledger (supports ?limit=n).
//     Returns 404 when the ledger is disabled.
package status
