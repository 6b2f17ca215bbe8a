// Package api implements the HTTP REST API and WebSocket server for the
// AirCloud bridge.
//
// This package provides:
//   - REST endpoints to list units, read one unit and send it a control intent
//   - State history and command log queries
//   - Manual refresh and account re-authentication
//   - WebSocket hub for unit state and coordinator status broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, bearer auth)
//
// # Endpoints
//
//	GET  /api/v1/health                  component health (503 when degraded)
//	GET  /api/v1/status                  refresh coordinator status
//	GET  /api/v1/metrics                 JSON process and unit summary
//	GET  /api/v1/devices                 all units
//	GET  /api/v1/devices/{id}            one unit
//	PUT  /api/v1/devices/{id}/state      control intent (202 on acceptance)
//	GET  /api/v1/devices/{id}/history    recorded states
//	GET  /api/v1/commands                command log
//	POST /api/v1/refresh                 run a refresh cycle now
//	POST /api/v1/account/reauth          replace rejected credentials
//	GET  /api/v1/ws                      WebSocket
//	GET  /metrics                        Prometheus
//
// # Security
//
// With api.auth.jwt_secret set, every endpoint except /health and the
// Prometheus scrape requires a bearer token from package auth. Viewers may
// read, operators may also send intents and refresh, admins may also
// replace the account credentials. WebSocket clients pass the token as the
// "token" query parameter. Without a secret the API is open and belongs on
// a trusted network only.
//
// # Graceful Degradation
//
// History, the command log and re-authentication are optional. Without
// them the matching endpoints answer 503 and everything else keeps working.
package api
