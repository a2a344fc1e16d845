// Package config loads the configuration of the gateway and the backend
// services from YAML files and environment variables, and validates it.
// Each binary picks its own file by name (gateway.yaml, users.yaml,
// orders.yaml); the structure is shared. The gateway lists its dependencies
// under services, each with replica URLs, a health path and breaker
// settings.
package config
