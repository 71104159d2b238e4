// Package app wires the filter search server together: configuration,
// logging, OpenTelemetry, the websocket hub, the search and health services,
// and the chi router with its middleware chain.
//
// # Lifecycle
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return app.Run()
//
// Run starts the HTTP server and the retention pruner and blocks until
// SIGINT, SIGTERM or a server failure. Stop cancels running searches, closes
// websocket clients and flushes telemetry within Server.ShutdownTimeout.
//
// # Routes
//
//	/healthz            liveness and readiness probes
//	/metrics            Prometheus exposition (when metrics are enabled)
//	/ws                 search progress stream
//	/api/v1/version     build information
//	/api/v1/stats       service and websocket statistics
//	/api/v1/searches    asynchronous search jobs
//
// Errors are never fatal inside this package; New and Run return them to the
// caller.
package app
