// Package services implements the business logic layer between the HTTP
// handlers and the run engine. Handlers stay thin: they decode and validate
// requests, call a service, and render the result; the services own window
// resolution, queue admission, store access, and error shaping.
//
// Two services cover the surface:
//
//	RunService    triggers, inspects, cancels, and deletes runs
//	HealthService liveness, readiness, and version reporting
//
// Services return *apierrors.APIError for conditions the HTTP layer must map
// to a specific status (run not found, queue full, run still executing) and
// plain wrapped errors for everything else; the centralized ErrorHandler
// renders both as RFC 7807 problems.
package services
