// Package app wires the configuration into a running service and owns its
// lifecycle.
//
// # Composition
//
// New builds every collaborator in dependency order: the schema table and
// run store first, then the run engine (source provider, transform engine,
// quality profiler, exporter, notifier) behind a Manager, then the job
// queue, the websocket hub, the request-facing services, and finally the
// chi router with its middleware stack. Nothing reaches for globals; each
// component receives its dependencies explicitly so tests can assemble the
// same graph with substitutes.
//
// # Initialization Flow
//
//	1. Load configuration (built-ins, YAML file, environment overrides)
//	2. Initialize the slog logger and OpenTelemetry providers
//	3. Ensure the artifact directory layout exists
//	4. Build the schema table and open the run store
//	5. Wire the run engine and job queue
//	6. Construct services, handlers, and the router
//	7. Create the HTTP server
//
// # Usage
//
// The serve command is the only caller:
//
//	application, err := app.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM, then Stop unwinds in reverse order:
// the scheduler stops triggering, the server stops accepting, the job queue
// drains in-flight runs (cancelled at the next stage boundary if the drain
// exceeds the shutdown timeout), the hub disconnects clients, and telemetry
// flushes. Initialization and shutdown errors are returned to the caller;
// the package never calls os.Exit.
package app
