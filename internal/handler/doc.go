// Package handler implements the gateway's HTTP surface: pass-through routes
// to the users and orders dependencies, identity-scoped order and user
// mutations, the user details aggregate, and health and status endpoints.
// It also carries the request id and request logging middleware.
package handler
