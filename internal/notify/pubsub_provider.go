package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/logging"
)

// PubSubProvider implements the notify.Provider interface for Google Cloud
// Pub/Sub.
type PubSubProvider struct {
	Client *pubsub.Client
	Topic  *pubsub.Topic
}

// NewPubSubProvider creates a new Pub/Sub client and gets a handle to the
// specified topic. It authenticates using Google Cloud's Application
// Default Credentials and fails fast when the topic is missing.
func NewPubSubProvider(ctx context.Context, projectID, topicID string) (*PubSubProvider, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic existence check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic existence check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic '%s' does not exist in project '%s'", topicID, projectID)
	}

	return &PubSubProvider{
		Client: client,
		Topic:  topic,
	}, nil
}

// Publish marshals the report to JSON and hands it to the topic. The send
// itself is asynchronous: the Pub/Sub client batches and retries in the
// background, and Close flushes whatever is still pending.
func (p *PubSubProvider) Publish(ctx context.Context, report RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":  report.RunID,
			"outcome": report.Outcome,
		},
	}

	// Publish returns a result immediately; the actual send happens in the
	// background. A run report is advisory, so we don't block on the ack.
	result := p.Topic.Publish(ctx, msg)
	_ = result

	return nil
}

// Close stops the topic's publisher, flushing pending messages, and closes
// the underlying client connection.
func (p *PubSubProvider) Close() error {
	p.Topic.Stop()
	if err := p.Client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
