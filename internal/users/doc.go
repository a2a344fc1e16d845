// Package users is the users backend service: registration, lookup, partial
// update and removal of accounts held in an in-memory store. Passwords are
// stored as bcrypt hashes; registration returns a signed token the gateway
// accepts as a credential.
package users
