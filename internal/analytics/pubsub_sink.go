package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubSink publishes each batch as one JSON message.
type PubSubSink struct {
	pub     publisher
	timeout time.Duration
}

func NewPubSubSink(p *gcppubsub.Publisher, timeout time.Duration) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("analytics publisher is required")
	}
	return newPubSubSink(&gcpPublisher{Publisher: p}, timeout), nil
}

func newPubSubSink(pub publisher, timeout time.Duration) *PubSubSink {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &PubSubSink{pub: pub, timeout: timeout}
}

type batchMessage struct {
	Events []Event `json:"events"`
}

func (s *PubSubSink) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	data, err := json.Marshal(batchMessage{Events: events})
	if err != nil {
		return fmt.Errorf("marshal cart events: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"session_id":  events[0].SessionID,
			"event_count": strconv.Itoa(len(events)),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result := s.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish cart events: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
