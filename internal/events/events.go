package events

import "time"

// EventType identifies an event on the bus
type EventType string

const (
	// AccountDirty is published whenever an account's transaction history or
	// preferences changed and its derived values (balances snapshot, XIRR)
	// need to be recomputed.
	AccountDirty EventType = "AccountDirty"

	// PricesUpdated is published after a price update run fetched fresh
	// quotes and recorded price marks.
	PricesUpdated EventType = "PricesUpdated"

	// SnapshotCompleted is published after the daily snapshot job finished.
	SnapshotCompleted EventType = "SnapshotCompleted"
)

// Event is a single occurrence delivered to subscribers
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      EventData
}

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AccountDirtyData contains data for AccountDirty events
type AccountDirtyData struct {
	AccountID int64  `json:"account_id"`
	Reason    string `json:"reason,omitempty"`
}

// EventType returns the event type for AccountDirtyData
func (d *AccountDirtyData) EventType() EventType {
	return AccountDirty
}

// PricesUpdatedData contains data for PricesUpdated events
type PricesUpdatedData struct {
	AssetsUpdated int    `json:"assets_updated"`
	AsOf          string `json:"as_of"`
}

// EventType returns the event type for PricesUpdatedData
func (d *PricesUpdatedData) EventType() EventType {
	return PricesUpdated
}

// SnapshotCompletedData contains data for SnapshotCompleted events
type SnapshotCompletedData struct {
	Accounts int    `json:"accounts"`
	Day      string `json:"day"`
}

// EventType returns the event type for SnapshotCompletedData
func (d *SnapshotCompletedData) EventType() EventType {
	return SnapshotCompleted
}
