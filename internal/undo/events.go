package undo

// Event is published when a mutation starts waiting for a decision or
// receives one.
type Event struct {
	Type    string   `json:"type"` // "pending" or "resolved"
	Pending *Pending `json:"pending"`
}
