package memory

import (
	"context"
	"encoding/json"

	loandomain "github.com/microloan/backend/internal/domain/loan"
)

type LoanRepository struct {
	s *Store
}

func (r *LoanRepository) CreateForUser(_ context.Context, in loandomain.CreateInput) (*loandomain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[in.UserID]
	if !ok {
		return nil, loandomain.ErrUserNotFound
	}
	if in.Amount > u.LoanLimit {
		return nil, loandomain.ErrLimitExceeded
	}
	for _, id := range r.s.loanOrder {
		l := r.s.loans[id]
		if l.UserID == in.UserID && loandomain.IsActive(l.Status) {
			return nil, loandomain.ErrActiveLoanExists
		}
	}

	now := r.s.now()
	e := &loandomain.Entity{
		ID:        newID(),
		UserID:    in.UserID,
		Amount:    in.Amount,
		Fee:       in.Fee,
		Total:     in.Total,
		Status:    in.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.loans[e.ID] = e
	r.s.loanOrder = append(r.s.loanOrder, e.ID)

	payload, _ := json.Marshal(loandomain.ApprovedEvent{LoanID: e.ID, UserID: e.UserID, Amount: e.Amount, Fee: e.Fee, Total: e.Total})
	r.s.enqueueLocked(loandomain.TopicApproved, e.UserID, payload)

	cp := *e
	return &cp, nil
}

func (r *LoanRepository) GetByID(_ context.Context, id string) (*loandomain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.loans[id]
	if !ok {
		return nil, loandomain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *LoanRepository) ListByUser(_ context.Context, userID string) ([]loandomain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]loandomain.Entity, 0)
	for i := len(r.s.loanOrder) - 1; i >= 0; i-- {
		e := r.s.loans[r.s.loanOrder[i]]
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *LoanRepository) GetLoanLimit(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return 0, loandomain.ErrUserNotFound
	}
	return u.LoanLimit, nil
}
