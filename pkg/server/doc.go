// Package server assembles the intake service for the HTTP deployment.
//
// BuildComponents opens the configured record store and the Stripe client
// and wires them into an intake.Service; the Lambda entry point reuses it.
// App adds the API router, a separate health and metrics server, and a
// cron-driven StoreMonitor, and shuts them down in order on cancellation.
package server
