// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Config controls publish retries.
type Config struct {
	MaxAttempts uint
	Delay       time.Duration
}

// Publisher wraps a Pub/Sub client.
type Publisher struct {
	client *pubsub.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a Publisher backed by client.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) *Publisher {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, cfg: cfg, logger: logger.Named("pubsub")}
}

// Publish marshals the payload to JSON and publishes it to topic, retrying transient failures.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", errors.New("pubsub client is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	t := p.client.Topic(topic)
	defer t.Stop()

	id, err := retry.DoWithData(
		func() (string, error) {
			return t.Publish(ctx, &pubsub.Message{
				Data:       data,
				Attributes: map[string]string{"content_type": "application/json"},
			}).Get(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(p.cfg.MaxAttempts),
		retry.Delay(p.cfg.Delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("publish attempt failed",
				zap.String("topic", topic),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
