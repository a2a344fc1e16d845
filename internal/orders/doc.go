// Package orders is the orders backend service. Orders live in an in-memory
// store and can be addressed either by id or by owner and id.
package orders
