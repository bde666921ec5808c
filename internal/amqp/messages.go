package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RefreshEvent announces that a refresh run finished. Consumers use it to
// mark cached transaction lists stale.
type RefreshEvent struct {
	RunID            string    `json:"run_id"`
	Trigger          string    `json:"trigger"`
	Succeeded        bool      `json:"succeeded"`
	TransactionCount int       `json:"transaction_count"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewRefreshEvent(runID, trigger string, succeeded bool, count int) *RefreshEvent {
	return &RefreshEvent{
		RunID:            runID,
		Trigger:          trigger,
		Succeeded:        succeeded,
		TransactionCount: count,
		OccurredAt:       time.Now().UTC(),
	}
}

func (e *RefreshEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RefreshEventFromJSON decodes an event, rejecting ones without a run id.
func RefreshEventFromJSON(data []byte) (*RefreshEvent, error) {
	var e RefreshEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.RunID == "" {
		return nil, errors.New("refresh event without run_id")
	}
	return &e, nil
}
