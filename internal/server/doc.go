// Package server exposes the HTTP control API: catalog and schedule
// inspection, starting and cancelling imports, job status, the table
// report, Prometheus metrics and a websocket stream of job events.
package server
