// Package pubsub publishes notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// Message is the JSON payload published for every notification.
type Message struct {
	Text      string    `json:"text"`
	Published time.Time `json:"published_at"`
}

// Publisher implements notifier.Notifier on a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	now    func() time.Time
}

// New connects to projectID and verifies topicID exists.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	p, err := NewFromClient(ctx, client, topicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

// NewFromClient uses an existing client, which the Publisher then owns.
func NewFromClient(ctx context.Context, client *pubsub.Client, topicID string) (*Publisher, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{client: client, topic: topic, now: time.Now}, nil
}

// Post publishes text and waits for the server acknowledgement.
func (p *Publisher) Post(ctx context.Context, text string) error {
	data, err := json.Marshal(Message{Text: text, Published: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content-type": "application/json"},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
