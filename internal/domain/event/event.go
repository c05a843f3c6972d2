package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted by the workflow pipeline
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	InvoiceID  string                 `json:"invoice_id"`
	WorkflowID string                 `json:"workflow_id"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates a new domain event with a generated id and timestamp
func New(eventType Type, invoiceID, workflowID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		InvoiceID:  invoiceID,
		WorkflowID: workflowID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// PayloadString retrieves a string value from the payload
func (e *Event) PayloadString(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadFloat retrieves a float64 value from the payload
func (e *Event) PayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// PayloadStrings retrieves a string slice from the payload
func (e *Event) PayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
