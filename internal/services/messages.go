package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// ErrMissingActivityID is returned for queue messages without an activity id
var ErrMissingActivityID = errors.New("message has no activity_id")

// Message is the queue payload requesting a match
type Message struct {
	ActivityID int64 `json:"activity_id"`
}

// MessageBatchReport summarizes a batch of queue messages
type MessageBatchReport struct {
	Processed int
	Skipped   int
	Failed    int
	Results   []*MatchResult
}

// ParseMessage decodes a queue message body
func ParseMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if msg.ActivityID == 0 {
		return Message{}, ErrMissingActivityID
	}
	return msg, nil
}

// HandleMessage processes the activity named by a queue message
func (o *MatchOrchestrator) HandleMessage(ctx context.Context, body []byte) (*MatchResult, error) {
	msg, err := ParseMessage(body)
	if err != nil {
		return nil, err
	}
	return o.Process(ctx, msg.ActivityID)
}

// HandleMessages processes each body in order. Bodies without an activity id
// are skipped; a failure does not stop the batch. The returned error combines
// every per-message failure so the dispatcher can redeliver.
func (o *MatchOrchestrator) HandleMessages(ctx context.Context, bodies [][]byte) (*MessageBatchReport, error) {
	report := &MessageBatchReport{}
	var errs error

	for i, body := range bodies {
		msg, err := ParseMessage(body)
		if err != nil {
			logging.Warnw(ctx, "Skipping queue message", "index", i, "error", err)
			report.Skipped++
			continue
		}

		result, err := o.Process(ctx, msg.ActivityID)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("activity %d: %w", msg.ActivityID, err))
			continue
		}

		report.Processed++
		report.Results = append(report.Results, result)
	}

	return report, errs
}
