package proxy

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Outcome tells how a forwarded call resolved.
type Outcome int

const (
	// Dependency means the body and status came from the dependency.
	Dependency Outcome = iota
	// Unavailable means the breaker served the fallback.
	Unavailable
	// Fault means proxying itself failed.
	Fault
)

func (o Outcome) String() string {
	switch o {
	case Dependency:
		return "dependency"
	case Unavailable:
		return "unavailable"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// Response is the client-facing result of a forwarded call.
type Response struct {
	Status  int
	Body    json.RawMessage
	Outcome Outcome
}

// OK reports whether the dependency answered with a 2xx status.
func (r Response) OK() bool {
	return r.Outcome == Dependency && r.Status >= 200 && r.Status < 300
}

// UnavailableResponse is the fallback served for the named dependency.
func UnavailableResponse(name string) Response {
	return Response{
		Status:  http.StatusServiceUnavailable,
		Body:    errorBody(capitalize(name) + " service temporarily unavailable"),
		Outcome: Unavailable,
	}
}

// FaultResponse is the generic internal-error result.
func FaultResponse() Response {
	return Response{
		Status:  http.StatusInternalServerError,
		Body:    errorBody("internal server error"),
		Outcome: Fault,
	}
}

// Write sends resp to the client.
func Write(w http.ResponseWriter, resp Response) {
	if len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func errorBody(message string) json.RawMessage {
	body, _ := json.Marshal(map[string]string{"error": message})
	return body
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
