package events

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/microloan/backend/internal/config"
)

func NewPublisherFromConfig(cfg config.Config, logger *slog.Logger) (Publisher, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.EventsPublisherMode))
	if mode == "" || mode == "log" {
		return NewLogPublisher(logger), nil
	}
	if mode != "rabbitmq" {
		return nil, fmt.Errorf("invalid EVENTS_PUBLISHER_MODE: %s", cfg.EventsPublisherMode)
	}
	return NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
}
