package loan

import (
	"context"
	"errors"
	"time"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDisbursed = "disbursed"
	StatusRepaid    = "repaid"
)

// TopicApproved is the outbox topic written alongside every new loan.
const TopicApproved = "loan.approved"

// ActiveStatuses are the states that block a user from applying again.
var ActiveStatuses = []string{StatusPending, StatusApproved, StatusDisbursed}

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrLimitExceeded    = errors.New("loan_limit_exceeded")
	ErrActiveLoanExists = errors.New("active_loan_exists")
	ErrNotFound         = errors.New("loan_not_found")
	ErrUserNotFound     = errors.New("user_not_found")
)

type Entity struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Fee       int64     `json:"fee"`
	Total     int64     `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func IsActive(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type CreateInput struct {
	UserID string
	Amount int64
	Fee    int64
	Total  int64
	Status string
}

// ApprovedEvent is the TopicApproved outbox payload.
type ApprovedEvent struct {
	LoanID string `json:"loan_id"`
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Fee    int64  `json:"fee"`
	Total  int64  `json:"total"`
}

type History struct {
	Loans     []Entity `json:"loans"`
	LoanLimit int64    `json:"loan_limit"`
}

// Repository persists loans. CreateForUser must check the user's limit and the
// absence of an active loan under the same lock that guards the insert, and
// record a TopicApproved outbox event in that same unit of work.
type Repository interface {
	CreateForUser(ctx context.Context, in CreateInput) (*Entity, error)
	GetByID(ctx context.Context, id string) (*Entity, error)
	ListByUser(ctx context.Context, userID string) ([]Entity, error)
	GetLoanLimit(ctx context.Context, userID string) (int64, error)
}
