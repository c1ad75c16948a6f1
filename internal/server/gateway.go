package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/microloan/backend/internal/config"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/gateway/fake"
	"github.com/microloan/backend/internal/gateway/paystack"
)

// NewGateway builds the payment provider client. The fake gateway settles
// every known reference and exists for local runs without provider keys.
func NewGateway(cfg config.Config, logger *slog.Logger) (payment.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.GatewayMode)) {
	case "fake":
		logger.Warn("using fake payment gateway")
		return fake.New(webhookSecret(cfg)), nil
	case "", "paystack":
		return paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackWebhookSecret, cfg.GatewayTimeout)
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_GATEWAY_MODE %q", cfg.GatewayMode)
	}
}

func webhookSecret(cfg config.Config) string {
	if s := strings.TrimSpace(cfg.PaystackWebhookSecret); s != "" {
		return s
	}
	return cfg.PaystackSecretKey
}
