// Package caption defines the types emitted and consumed by capwatch.
// These are the public API contract: sinks, the HTTP control plane and
// embedding programs import this package to exchange caption data.
package caption

// NodeID is an opaque handle for a caption element. Two observations refer
// to the same element if and only if their NodeIDs are equal. It is never
// interpreted for ordering.
type NodeID string

// Observation is a point-in-time read of the caption source.
type Observation struct {
	Identity NodeID `json:"identity"`
	Text     string `json:"text"` // trimmed, non-empty
}
