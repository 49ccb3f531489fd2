package types

// Event is the flattened, string-attributed form of a state change as it is
// exported to logs, the audit journal and API clients.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
