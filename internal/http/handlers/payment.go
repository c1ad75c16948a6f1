package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/domain/payment"
)

const signatureHeader = "X-Paystack-Signature"

type PaymentService interface {
	Initialize(ctx context.Context, userID string, in payment.InitializeInput) (*payment.InitializeResult, error)
	Verify(ctx context.Context, userID, reference string) (*payment.Result, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*payment.WebhookAck, error)
	ListTransactions(ctx context.Context, userID string) ([]payment.Transaction, error)
}

type PaymentHandler struct {
	paymentService PaymentService
}

func NewPaymentHandler(paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) Initialize(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req payment.InitializeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, err, "loan_id is required")
		return
	}
	res, err := h.paymentService.Initialize(c.Request.Context(), uid, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.paymentService.Verify(c.Request.Context(), uid, c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) Transactions(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.paymentService.ListTransactions(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items})
}

// Webhook reads the raw body because the signature covers the exact bytes
// the provider sent.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		bodyError(c, err, "unreadable body")
		return
	}
	ack, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ack)
	case errors.Is(err, payment.ErrSignatureInvalid):
		writeError(c, err)
	case errors.Is(err, payment.ErrInvalidInput):
		badRequest(c, "invalid webhook payload")
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook_failed", "message": "Webhook processing failed"})
	}
}
