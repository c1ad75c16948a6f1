package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microloan/backend/internal/domain/fee"
	loandomain "github.com/microloan/backend/internal/domain/loan"
)

type loanRepoMock struct {
	limits  map[string]int64
	items   []loandomain.Entity
	created []loandomain.CreateInput
	nextID  int
}

func newLoanRepoMock() *loanRepoMock {
	return &loanRepoMock{limits: map[string]int64{"u-1": 5000, "u-2": 5000}}
}

func (m *loanRepoMock) CreateForUser(_ context.Context, in loandomain.CreateInput) (*loandomain.Entity, error) {
	limit, ok := m.limits[in.UserID]
	if !ok {
		return nil, loandomain.ErrUserNotFound
	}
	if in.Amount > limit {
		return nil, loandomain.ErrLimitExceeded
	}
	for _, item := range m.items {
		if item.UserID == in.UserID && loandomain.IsActive(item.Status) {
			return nil, loandomain.ErrActiveLoanExists
		}
	}
	m.nextID++
	m.created = append(m.created, in)
	e := loandomain.Entity{
		ID:        "l-" + string(rune('0'+m.nextID)),
		UserID:    in.UserID,
		Amount:    in.Amount,
		Fee:       in.Fee,
		Total:     in.Total,
		Status:    in.Status,
		CreatedAt: time.Now().UTC(),
	}
	m.items = append(m.items, e)
	return &e, nil
}

func (m *loanRepoMock) GetByID(_ context.Context, id string) (*loandomain.Entity, error) {
	for _, item := range m.items {
		if item.ID == id {
			cp := item
			return &cp, nil
		}
	}
	return nil, loandomain.ErrNotFound
}

func (m *loanRepoMock) ListByUser(_ context.Context, userID string) ([]loandomain.Entity, error) {
	var out []loandomain.Entity
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *loanRepoMock) GetLoanLimit(_ context.Context, userID string) (int64, error) {
	limit, ok := m.limits[userID]
	if !ok {
		return 0, loandomain.ErrUserNotFound
	}
	return limit, nil
}

func TestApplyCreatesApprovedLoanWithFee(t *testing.T) {
	repo := newLoanRepoMock()
	svc := loandomain.NewService(repo)

	got, err := svc.Apply(context.Background(), "u-1", 5000)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != loandomain.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}
	if got.Fee != 350 || got.Total != 5350 {
		t.Fatalf("expected fee 350 total 5350, got fee=%d total=%d", got.Fee, got.Total)
	}
}

func TestApplyRejectsOutOfRangeBeforeTouchingStore(t *testing.T) {
	repo := newLoanRepoMock()
	svc := loandomain.NewService(repo)

	for _, amount := range []int64{0, 2999, 60001} {
		_, err := svc.Apply(context.Background(), "u-1", amount)
		if !errors.Is(err, loandomain.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected invalid amount, got %v", amount, err)
		}
		if !errors.Is(err, fee.ErrOutOfRange) {
			t.Fatalf("amount %d: expected wrapped out of range, got %v", amount, err)
		}
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no inserts, got %d", len(repo.created))
	}
}

func TestApplyLimitExceeded(t *testing.T) {
	svc := loandomain.NewService(newLoanRepoMock())

	_, err := svc.Apply(context.Background(), "u-1", 6000)
	if !errors.Is(err, loandomain.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
}

func TestApplySecondLoanWhileActive(t *testing.T) {
	svc := loandomain.NewService(newLoanRepoMock())

	if _, err := svc.Apply(context.Background(), "u-1", 3000); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := svc.Apply(context.Background(), "u-1", 3000)
	if !errors.Is(err, loandomain.ErrActiveLoanExists) {
		t.Fatalf("expected active loan exists, got %v", err)
	}
}

func TestPreviewIsPure(t *testing.T) {
	repo := newLoanRepoMock()
	svc := loandomain.NewService(repo)

	q, err := svc.Preview(6500)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if q.Fee != 460 || q.TotalRepayable != 6960 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if len(repo.created) != 0 {
		t.Fatalf("preview must not persist")
	}
	if _, err := svc.Preview(100); !errors.Is(err, loandomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestHistoryReturnsLimitAndEmptySlice(t *testing.T) {
	svc := loandomain.NewService(newLoanRepoMock())

	h, err := svc.History(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.LoanLimit != 5000 {
		t.Fatalf("expected limit 5000, got %d", h.LoanLimit)
	}
	if h.Loans == nil || len(h.Loans) != 0 {
		t.Fatalf("expected empty non-nil loans, got %#v", h.Loans)
	}
}

func TestGetHidesOtherUsersLoans(t *testing.T) {
	svc := loandomain.NewService(newLoanRepoMock())

	created, err := svc.Apply(context.Background(), "u-1", 4000)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.Get(context.Background(), "u-1", created.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(context.Background(), "u-2", created.ID); !errors.Is(err, loandomain.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}
