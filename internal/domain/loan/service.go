package loan

import (
	"context"
	"fmt"
	"strings"

	"github.com/microloan/backend/internal/domain/fee"
)

type Service struct {
	loanRepo Repository
}

func NewService(loanRepo Repository) *Service {
	return &Service{loanRepo: loanRepo}
}

// Apply prices the principal, then hands the limit and single-active-loan
// checks to the repository so they run atomically with the insert.
func (s *Service) Apply(ctx context.Context, userID string, amount int64) (*Entity, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserNotFound
	}
	quote, err := fee.QuoteFor(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	return s.loanRepo.CreateForUser(ctx, CreateInput{
		UserID: userID,
		Amount: quote.Principal,
		Fee:    quote.Fee,
		Total:  quote.TotalRepayable,
		Status: StatusApproved,
	})
}

func (s *Service) Preview(amount int64) (fee.Quote, error) {
	quote, err := fee.QuoteFor(amount)
	if err != nil {
		return fee.Quote{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return quote, nil
}

func (s *Service) History(ctx context.Context, userID string) (*History, error) {
	limit, err := s.loanRepo.GetLoanLimit(ctx, userID)
	if err != nil {
		return nil, err
	}
	loans, err := s.loanRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if loans == nil {
		loans = []Entity{}
	}
	return &History{Loans: loans, LoanLimit: limit}, nil
}

// Get hides loans owned by other users behind ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, loanID string) (*Entity, error) {
	if strings.TrimSpace(loanID) == "" {
		return nil, ErrNotFound
	}
	e, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, ErrNotFound
	}
	return e, nil
}
