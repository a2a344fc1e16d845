// Package proxy forwards gateway requests to a dependency through its circuit
// breaker.
//
// Every call resolves to a status and JSON body:
//   - a response from the dependency, any status, is passed through verbatim
//   - a rejected, timed out or unreachable call yields a 503 with a fixed
//     "<Name> service temporarily unavailable" body
//   - a malformed dependency response or a request that cannot be built yields
//     a 500 and is logged at error level
//
// 4xx responses are domain answers and never count against the breaker; 5xx
// responses are passed through but do.
package proxy
