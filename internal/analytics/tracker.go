package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher hands events to an asynchronous sink
type Publisher interface {
	Publish(ctx context.Context, key, kind string, payload any) error
}

// Tracker accepts events from the storefront. With a publisher the event is
// streamed for the worker to record; without one, or when publishing fails,
// it is recorded directly.
type Tracker struct {
	recorder  *Recorder
	publisher Publisher
	log       *zap.Logger
}

func NewTracker(recorder *Recorder, publisher Publisher, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{recorder: recorder, publisher: publisher, log: log.Named("tracker")}
}

// Track validates and dispatches one event, returning the session id used
func (t *Tracker) Track(ctx context.Context, e Event) (string, error) {
	if err := e.Normalize(); err != nil {
		return "", err
	}
	if e.SessionID == "" {
		e.SessionID = uuid.NewString()
	}

	if t.publisher != nil {
		err := t.publisher.Publish(ctx, e.SessionID, e.EventType, e)
		if err == nil {
			return e.SessionID, nil
		}
		t.log.Warn("analytics publish failed, recording directly",
			zap.String("event_type", e.EventType), zap.Error(err))
	}

	if _, err := t.recorder.Record(ctx, e); err != nil {
		return "", err
	}
	return e.SessionID, nil
}

// MessageHandler decodes streamed events and records them
func (r *Recorder) MessageHandler() func(ctx context.Context, key, value []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode event %q: %w", key, err)
		}
		id, err := r.Record(ctx, e)
		if err != nil {
			return err
		}
		r.log.Debug("event recorded", zap.Int64("id", id), zap.String("event_type", e.EventType))
		return nil
	}
}
