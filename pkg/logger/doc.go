// Package logger builds the structured slog logger shared by the gateway and
// the backend services: text output in dev and staging, JSON in prod.
package logger
