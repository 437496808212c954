// Package api implements the HTTP front end of Annunciator Core.
//
// This package provides:
//   - REST endpoints for speaker and group management
//   - Command routes (/play, /stop, /status and their /group variants)
//     called by VMS integrations and the web UI
//   - A connectivity test endpoint
//   - Live event streams over Server-Sent Events and WebSocket, both fed
//     from the process event bus
//   - The audit trail listing
//   - Middleware: request ID, request events, recovery, CORS, body limit and
//     JWT authentication for management routes
//
// # Security
//
// When security.auth_enabled is set, management routes require a bearer
// token from POST /api/auth/login. The SSE and WebSocket routes also accept
// the token as a "token" query parameter because browsers cannot set headers
// on EventSource or WebSocket connections. Command routes are never gated.
//
// # Error Responses
//
// Every error is rendered as {"error": {"code": "...", "message": "..."}}.
package api
