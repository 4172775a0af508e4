// Package pubsub publishes crawl records to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Topic is the subset of *pubsub.Topic used for publishing.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic Topic
}

// New creates a Publisher for the provided topic.
func New(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the payload to JSON and blocks until the server
// acknowledges it.
func (p *Publisher) Publish(ctx context.Context, attrs map[string]string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string, len(attrs))}
	for k, v := range attrs {
		msg.Attributes[k] = v
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
