package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Publisher delivers a committed ledger event to downstream consumers. The
// topic doubles as the routing key.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// LogPublisher writes events to the structured log. Used locally and when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("missing topic")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("invalid_payload")
	}
	p.logger.Info("ledger event", "topic", topic, "payload", string(payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
