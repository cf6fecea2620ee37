package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/velmie/cadence"
)

// DefaultStreamMaxLen caps the stream length when no explicit cap is configured.
const DefaultStreamMaxLen = 100_000

// StreamAdder is the subset of the redis client used by RedisStream. *redis.Client satisfies it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends step dispatches to a Redis stream consumed by the automation engine.
type RedisStream struct {
	client StreamAdder
	stream string
	maxLen int64
}

var _ cadence.Dispatcher = (*RedisStream)(nil)

// NewRedisStream creates a stream publisher. maxLen <= 0 uses DefaultStreamMaxLen.
func NewRedisStream(client StreamAdder, stream string, maxLen int64) (*RedisStream, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if strings.TrimSpace(stream) == "" {
		return nil, ErrStreamRequired
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}

	return &RedisStream{client: client, stream: stream, maxLen: maxLen}, nil
}

// Dispatch adds one entry with the JSON payload plus channel and action fields for consumer-side routing.
func (s *RedisStream) Dispatch(ctx context.Context, d cadence.StepDispatch) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("dispatch: encode step: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: []any{
			"payload", string(payload),
			"channel", string(d.Channel),
			"action", string(d.Action),
			"enrollment_id", d.EnrollmentID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("dispatch: xadd %s: %w", s.stream, err)
	}

	return nil
}
