// Package pubsub announces finished crawl sessions on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

// Summary is the JSON payload published for each finished session.
type Summary struct {
	SessionID string         `json:"session_id"`
	Seed      string         `json:"seed"`
	Status    crawler.Status `json:"status"`
	Visited   int            `json:"visited"`
	Broken    int            `json:"broken"`
}

type publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	Stop()
}

// Notifier publishes a Summary per session. It never carries the records
// themselves.
type Notifier struct {
	publisher publisher
	logger    *zap.Logger
}

var _ report.Sink = (*Notifier)(nil)

// New creates a Notifier publishing to topicID in projectID.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Notifier, func() error, error) {
	if projectID == "" || topicID == "" {
		return nil, nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	n := newNotifier(&topicPublisher{topic: topic}, logger)
	closeFn := func() error {
		n.publisher.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	}
	return n, closeFn, nil
}

func newNotifier(p publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{publisher: p, logger: logger}
}

// Write publishes the session summary and waits for the server ack.
func (n *Notifier) Write(ctx context.Context, meta report.Meta, records []crawler.ErrorRecord) error {
	if n.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(Summary{
		SessionID: meta.SessionID,
		Seed:      meta.Seed,
		Status:    meta.Status,
		Visited:   meta.Visited,
		Broken:    len(records),
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	id, err := n.publisher.Publish(ctx, data, map[string]string{
		"session_id": meta.SessionID,
		"status":     string(meta.Status),
	})
	if err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	n.logger.Debug("session summary published",
		zap.String("session_id", meta.SessionID),
		zap.String("message_id", id),
	)
	return nil
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (p *topicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *topicPublisher) Stop() {
	p.topic.Stop()
}
