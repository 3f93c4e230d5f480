// Package kafka carries submission notifications between the upload surface
// and the report router over Apache Kafka.
package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionEvent announces that a new report submission landed in the
// object store inbox. The router consumes these to file the report and
// queue the owner for re-aggregation.
type SubmissionEvent struct {
	// Key is the inbox object key holding the submitted report.
	Key string `json:"key"`

	OwnerID     string    `json:"owner_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Marshal encodes the event for the wire.
func (e SubmissionEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding submission event: %w", err)
	}
	return data, nil
}

// UnmarshalSubmissionEvent decodes an event from the wire.
func UnmarshalSubmissionEvent(data []byte) (SubmissionEvent, error) {
	var e SubmissionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return SubmissionEvent{}, fmt.Errorf("decoding submission event: %w", err)
	}
	return e, nil
}
