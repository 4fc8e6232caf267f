package message

import (
	"fmt"
	"time"
)

// Record is the payload of a single event, typically parsed from JSON.
type Record map[string]interface{}

// Event is one timestamped record.
type Event struct {
	Time   time.Time
	Record Record
}

// Batch is an ordered run of events delivered under one tag.
type Batch []Event

// Envelope is the wire form of a tagged event.
type Envelope struct {
	Tag    string    `json:"tag"`
	Time   time.Time `json:"time"`
	Record Record    `json:"record"`
}

// Event drops the tag.
func (e Envelope) Event() Event {
	return Event{Time: e.Time, Record: e.Record}
}

// Envelopes tags every event of the batch, for stores that write tagged lines.
func (b Batch) Envelopes(tag string) []Envelope {
	out := make([]Envelope, len(b))
	for i, ev := range b {
		out[i] = Envelope{Tag: tag, Time: ev.Time, Record: ev.Record}
	}
	return out
}

// GetFieldSnippet returns a string snippet of a field's value, useful for logging.
// It handles missing keys and truncates long values.
func (r Record) GetFieldSnippet(fieldName string, maxLength int) string {
	value, exists := r[fieldName]
	if !exists {
		return "<missing>"
	}

	strValue := fmt.Sprintf("%v", value)
	if maxLength <= 0 {
		return "..."
	}
	if len(strValue) > maxLength {
		return strValue[:maxLength] + "..."
	}
	return strValue
}
