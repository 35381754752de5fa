// Package http implements the HTTP handlers for the fedflow service. It is a
// thin layer between transport and the service packages: handlers parse and
// validate requests, delegate to services, and shape responses.
//
// # Request Flow
//
// A request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Pipeline/Store
//	                                               ↓
//	HTTP Response ← Handler ← Service Response ←──┘
//
// # Surface
//
// Four handlers cover the API:
//
//	RunsHandler      POST/GET/DELETE /api/v1/runs, async job endpoints
//	QualityHandler   quality report and workbook artifacts
//	HealthHandler    health summary plus liveness/readiness probes
//	WebSocketHandler the /ws upgrade endpoint feeding the event hub
//
// # Error Handling
//
// Handlers never write error bodies themselves. Every failure goes through
// errors.ErrorHandler, which renders RFC 7807 problem details:
//
//	{
//	    "type": "/errors/run/not-found",
//	    "title": "Run Not Found",
//	    "status": 404,
//	    "detail": "no run record for id \"daily_...\"",
//	    "instance": "/api/v1/runs/daily_..."
//	}
//
// Triggering is asynchronous: POST /api/v1/runs answers 202 Accepted with a
// poll_url; the job resource carries the run id once a worker picks it up.
package http
