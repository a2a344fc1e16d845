// Package httpserver wraps http.Server with a validated listen address,
// configurable timeouts and graceful shutdown, and holds the JSON response
// helpers shared by the gateway and the backend services.
package httpserver
