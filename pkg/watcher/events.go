package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventAccountsUpdated  EventType = "accounts_updated"
	EventAccountsChanged  EventType = "accounts_changed"
	EventContractsChanged EventType = "contracts_changed"
	EventHistoryChanged   EventType = "history_changed"
	EventChainChanged     EventType = "chain_changed"
	EventError            EventType = "error"
)

// Event represents a workspace event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
