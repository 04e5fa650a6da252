package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Ledger events
	EventSaleCreated     = "ledger.sale.created"
	EventSaleCategorized = "ledger.sale.categorized"
	EventSaleSplit       = "ledger.sale.split"
	EventSaleUnsplit     = "ledger.sale.unsplit"
	EventSaleDeleted     = "ledger.sale.deleted"

	// Ingest events
	EventSyncRequested = "ingest.sync.requested"
	EventSyncCompleted = "ingest.sync.completed"

	// Operator events
	EventIncidentRaised = "ops.incident.raised"
)

// Exchange names
const (
	ExchangeLedgerEvents = "ledger.events"
	ExchangeIngestEvents = "ingest.events"
	ExchangeOpsEvents    = "ops.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Ledger Events

// SaleCategorizedEvent is published when a sale is assigned a category
type SaleCategorizedEvent struct {
	RestaurantID string `json:"restaurant_id"`
	SaleID       string `json:"sale_id"`
	CategoryID   string `json:"category_id"`
	PerformedBy  string `json:"performed_by"`
}

// SaleSplitEvent is published when a sale's allocations are (re)written
type SaleSplitEvent struct {
	RestaurantID string `json:"restaurant_id"`
	SaleID       string `json:"sale_id"`
	Allocations  int    `json:"allocations"`
	Total        string `json:"total"`
	PerformedBy  string `json:"performed_by"`
}

// SaleChangedEvent is published for creations, deletions and unsplits
type SaleChangedEvent struct {
	RestaurantID string `json:"restaurant_id"`
	SaleID       string `json:"sale_id"`
	PerformedBy  string `json:"performed_by"`
}

// Ingest Events

// SyncRequestedEvent asks a worker to run a vendor sync. An empty
// RestaurantID means every restaurant with an active connection.
type SyncRequestedEvent struct {
	POSSystem    string `json:"pos_system"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// SyncCompletedEvent reports the outcome of one tenant's vendor sync
type SyncCompletedEvent struct {
	RestaurantID string `json:"restaurant_id"`
	POSSystem    string `json:"pos_system"`
	RunID        string `json:"run_id,omitempty"`
	Status       string `json:"status"`
	Processed    int    `json:"processed"`
	Inserted     int    `json:"inserted"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	Errored      int    `json:"errored"`
}

// Operator Events

// IncidentRaisedEvent notifies operators of work that needs a human
type IncidentRaisedEvent struct {
	IncidentID string            `json:"incident_id"`
	Source     string            `json:"source"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}
