package payment

import (
	"context"
	"errors"
	"time"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// ResultTimeout is reported to callers when the gateway did not answer in
	// time. It is never persisted.
	ResultTimeout = "timeout"
)

// TopicReconciled is the outbox topic written when a transaction reaches a
// terminal state.
const TopicReconciled = "payment.reconciled"

var (
	ErrInvalidInput       = errors.New("invalid_payment_input")
	ErrNotFound           = errors.New("loan_not_found")
	ErrNotAuthorized      = errors.New("not_authorized")
	ErrUnknownReference   = errors.New("unknown_reference")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayTimeout     = errors.New("gateway_timeout")
	ErrSignatureInvalid   = errors.New("invalid_signature")
	ErrLoanAlreadyRepaid  = errors.New("loan_already_repaid")
	ErrDuplicateReference = errors.New("duplicate_reference")
)

type Transaction struct {
	ID            string            `json:"id"`
	LoanID        string            `json:"loan_id"`
	UserID        string            `json:"-"`
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	GatewayStatus string            `json:"gateway_status,omitempty"`
	Message       string            `json:"message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFailed
}

type CreateInput struct {
	LoanID    string
	Reference string
	Amount    int64
	Metadata  map[string]string
}

// Outcome is a gateway verdict for one reference, from either the verify poll
// or a webhook.
type Outcome struct {
	Success       bool
	Amount        int64
	GatewayStatus string
	Message       string
}

type ApplyInput struct {
	Reference      string
	Outcome        Outcome
	LimitIncrement int64
	LimitCap       int64
}

// ApplyRecord is the transaction as stored after ApplyOutcome. Applied is false
// when the transaction was already terminal and nothing was written.
type ApplyRecord struct {
	Transaction Transaction
	Applied     bool
}

// Result is what callers of Verify and the webhook observe. It is derived from
// the stored transaction so repeated calls for a terminal reference match.
type Result struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message"`
	Applied   bool   `json:"-"`
}

type InitializeInput struct {
	LoanID      string `json:"loan_id"`
	CallbackURL string `json:"callback_url"`
}

type InitializeResult struct {
	RedirectURL string `json:"redirect_url"`
	AccessCode  string `json:"access_code"`
	Reference   string `json:"reference"`
}

type WebhookAck struct {
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Handled   bool   `json:"handled"`
	Status    string `json:"status,omitempty"`
}

// Repository persists transactions. ApplyOutcome must lock the transaction row,
// return the stored row untouched when it is already terminal, and otherwise
// update the transaction, loan and user limit plus a TopicReconciled outbox
// event in one unit of work. Unknown references return ErrUnknownReference.
type Repository interface {
	Create(ctx context.Context, in CreateInput) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int32) ([]Transaction, error)
	ApplyOutcome(ctx context.Context, in ApplyInput) (*ApplyRecord, error)
}

// ReconciledEvent is the TopicReconciled outbox payload.
type ReconciledEvent struct {
	Reference  string `json:"reference"`
	LoanID     string `json:"loan_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	LoanStatus string `json:"loan_status"`
	LoanLimit  int64  `json:"loan_limit"`
}

type UserDirectory interface {
	GetPhone(ctx context.Context, userID string) (string, error)
}
