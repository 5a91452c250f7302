// Package api exposes the knowledge base over a JSON HTTP API.
//
// Routing uses gorilla/mux and the middleware chain is built with negroni:
// panic recovery, request logging, then per-route Prometheus metrics.
// Request bodies are validated with validator/v10 before any service call,
// and service errors are mapped to status codes in one place (errors.go).
package api
