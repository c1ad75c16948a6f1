package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/db"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{loandomain.ErrInvalidAmount, apiError{http.StatusBadRequest, "invalid_amount", "Loan amount must be between 3000 and 60000"}},
	{loandomain.ErrLimitExceeded, apiError{http.StatusBadRequest, "loan_limit_exceeded", "Requested amount exceeds your loan limit"}},
	{loandomain.ErrActiveLoanExists, apiError{http.StatusConflict, "active_loan_exists", "You already have an active loan"}},
	{loandomain.ErrNotFound, apiError{http.StatusNotFound, "loan_not_found", "Loan not found"}},
	{payment.ErrNotFound, apiError{http.StatusNotFound, "loan_not_found", "Loan not found"}},
	{payment.ErrInvalidInput, apiError{http.StatusBadRequest, "invalid_request", "Invalid payment request"}},
	{payment.ErrUnknownReference, apiError{http.StatusNotFound, "transaction_not_found", "Transaction not found"}},
	{payment.ErrNotAuthorized, apiError{http.StatusForbidden, "not_authorized", "Not authorized to access this transaction"}},
	{payment.ErrLoanAlreadyRepaid, apiError{http.StatusConflict, "loan_already_repaid", "Loan is already repaid"}},
	{payment.ErrGatewayUnavailable, apiError{http.StatusBadGateway, "gateway_unavailable", "Failed to initialize payment"}},
	{payment.ErrSignatureInvalid, apiError{http.StatusUnauthorized, "invalid_signature", "Invalid signature"}},
	{auth.ErrInvalidInput, apiError{http.StatusBadRequest, "invalid_request", "Phone and a password of at least 6 characters are required"}},
	{auth.ErrInvalidCredentials, apiError{http.StatusUnauthorized, "invalid_credentials", "Invalid phone or password"}},
	{auth.ErrInvalidToken, apiError{http.StatusUnauthorized, "unauthorized", "Invalid or expired token"}},
	{auth.ErrSessionRevoked, apiError{http.StatusUnauthorized, "unauthorized", "Session revoked"}},
	{db.ErrPhoneTaken, apiError{http.StatusConflict, "phone_already_registered", "Phone number already registered"}},
	{db.ErrIDNumberTaken, apiError{http.StatusConflict, "id_number_already_registered", "ID number already registered"}},
	{db.ErrUserNotFound, apiError{http.StatusNotFound, "user_not_found", "User not found"}},
}

// writeError maps domain sentinels to a status and {"error","message"} body.
// Anything unmapped is a 500 with a generic message.
func writeError(c *gin.Context, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			c.JSON(e.status, gin.H{"error": e.code, "message": e.message})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Something went wrong"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}

// bodyError reports a body read or decode failure. Bodies cut off by the
// size limit get 413; anything else is a plain 400.
func bodyError(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large", "message": "request body too large"})
		return
	}
	badRequest(c, message)
}

func currentUser(c *gin.Context) (string, bool) {
	uid := c.GetString("user_id")
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing access token"})
		return "", false
	}
	return uid, true
}
