package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/microloan/backend/internal/db"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
)

func seedUser(t *testing.T, s *Store, phone string, limit int64) *db.User {
	t.Helper()
	u, err := s.Users().CreateUser(context.Background(), db.CreateUserInput{Phone: phone, PasswordHash: "x", LoanLimit: limit})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func approvedLoan(userID string, amount int64) loandomain.CreateInput {
	return loandomain.CreateInput{UserID: userID, Amount: amount, Fee: 200, Total: amount + 200, Status: loandomain.StatusApproved}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Users().CreateUser(ctx, db.CreateUserInput{Phone: "254700000001", IDNumber: "123", PasswordHash: "x"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Users().CreateUser(ctx, db.CreateUserInput{Phone: "254700000001", PasswordHash: "x"}); !errors.Is(err, db.ErrPhoneTaken) {
		t.Fatalf("expected phone taken, got %v", err)
	}
	if _, err := s.Users().CreateUser(ctx, db.CreateUserInput{Phone: "254700000002", IDNumber: "123", PasswordHash: "x"}); !errors.Is(err, db.ErrIDNumberTaken) {
		t.Fatalf("expected id number taken, got %v", err)
	}
}

func TestConcurrentAppliesCreateExactlyOneLoan(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "254700000001", 5000)
	loans := s.Loans()

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := loans.CreateForUser(context.Background(), approvedLoan(u.ID, 3000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, loandomain.ErrActiveLoanExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if created != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 created and %d conflicts, got %d and %d", workers-1, created, conflicts)
	}
	list, _ := loans.ListByUser(context.Background(), u.ID)
	if len(list) != 1 {
		t.Fatalf("expected one stored loan, got %d", len(list))
	}
}

func TestCreateForUserChecksLimit(t *testing.T) {
	s := NewStore()
	u := seedUser(t, s, "254700000001", 5000)
	if _, err := s.Loans().CreateForUser(context.Background(), approvedLoan(u.ID, 6000)); !errors.Is(err, loandomain.ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	if _, err := s.Loans().CreateForUser(context.Background(), approvedLoan("missing", 3000)); !errors.Is(err, loandomain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestApplyOutcomeIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "254700000001", 5000)
	l, err := s.Loans().CreateForUser(ctx, loandomain.CreateInput{UserID: u.ID, Amount: 5000, Fee: 350, Total: 5350, Status: loandomain.StatusApproved})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	txs := s.Transactions()
	if _, err := txs.Create(ctx, payment.CreateInput{LoanID: l.ID, Reference: "LOAN_1_AAAA", Amount: 5350}); err != nil {
		t.Fatalf("create tx: %v", err)
	}

	in := payment.ApplyInput{
		Reference:      "LOAN_1_AAAA",
		Outcome:        payment.Outcome{Success: true, Amount: 5350, GatewayStatus: "success", Message: "ok"},
		LimitIncrement: 2000,
		LimitCap:       60000,
	}
	first, err := txs.ApplyOutcome(ctx, in)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := txs.ApplyOutcome(ctx, in)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if !first.Applied || second.Applied {
		t.Fatalf("expected applied once, got %v then %v", first.Applied, second.Applied)
	}
	if first.Transaction.Status != second.Transaction.Status || first.Transaction.Message != second.Transaction.Message {
		t.Fatalf("results differ: %+v vs %+v", first.Transaction, second.Transaction)
	}
	limit, _ := s.Loans().GetLoanLimit(ctx, u.ID)
	if limit != 7000 {
		t.Fatalf("expected limit 7000, got %d", limit)
	}
	got, _ := s.Loans().GetByID(ctx, l.ID)
	if got.Status != loandomain.StatusRepaid {
		t.Fatalf("expected repaid, got %s", got.Status)
	}

	reconciled := 0
	for _, job := range s.Outbox().Jobs() {
		if job.Topic == payment.TopicReconciled {
			reconciled++
		}
	}
	if reconciled != 1 {
		t.Fatalf("expected one reconciled event, got %d", reconciled)
	}
}

func TestApplyOutcomeSecondReferenceOnRepaidLoanKeepsLimit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "254700000009", 5000)
	l, err := s.Loans().CreateForUser(ctx, loandomain.CreateInput{UserID: u.ID, Amount: 5000, Fee: 350, Total: 5350, Status: loandomain.StatusApproved})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	txs := s.Transactions()
	for _, ref := range []string{"LOAN_1_AAAA", "LOAN_1_BBBB"} {
		if _, err := txs.Create(ctx, payment.CreateInput{LoanID: l.ID, Reference: ref, Amount: 5350}); err != nil {
			t.Fatalf("create tx %s: %v", ref, err)
		}
	}

	for _, ref := range []string{"LOAN_1_AAAA", "LOAN_1_BBBB"} {
		rec, err := txs.ApplyOutcome(ctx, payment.ApplyInput{
			Reference:      ref,
			Outcome:        payment.Outcome{Success: true, Amount: 5350, GatewayStatus: "success"},
			LimitIncrement: 2000,
			LimitCap:       60000,
		})
		if err != nil {
			t.Fatalf("apply %s: %v", ref, err)
		}
		if !rec.Applied || rec.Transaction.Status != payment.StatusSuccess {
			t.Fatalf("apply %s: unexpected record %+v", ref, rec)
		}
	}

	limit, _ := s.Loans().GetLoanLimit(ctx, u.ID)
	if limit != 7000 {
		t.Fatalf("expected limit 7000 after one repaid loan, got %d", limit)
	}
}

func TestApplyOutcomeFailureLeavesLoanAndLimit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "254700000001", 5000)
	l, _ := s.Loans().CreateForUser(ctx, approvedLoan(u.ID, 3000))
	_, _ = s.Transactions().Create(ctx, payment.CreateInput{LoanID: l.ID, Reference: "R1", Amount: 3200})

	rec, err := s.Transactions().ApplyOutcome(ctx, payment.ApplyInput{Reference: "R1", Outcome: payment.Outcome{GatewayStatus: "failed"}, LimitIncrement: 2000, LimitCap: 60000})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Transaction.Status != payment.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Transaction.Status)
	}
	got, _ := s.Loans().GetByID(ctx, l.ID)
	if got.Status != loandomain.StatusApproved {
		t.Fatalf("loan must stay approved, got %s", got.Status)
	}
	if limit, _ := s.Loans().GetLoanLimit(ctx, u.ID); limit != 5000 {
		t.Fatalf("limit must not change, got %d", limit)
	}
	rec, _ = s.Transactions().ApplyOutcome(ctx, payment.ApplyInput{Reference: "R1", Outcome: payment.Outcome{Success: true}, LimitIncrement: 2000, LimitCap: 60000})
	if rec.Applied || rec.Transaction.Status != payment.StatusFailed {
		t.Fatalf("terminal failed must not flip to success: %+v", rec)
	}
}

func TestApplyOutcomeUnknownReference(t *testing.T) {
	s := NewStore()
	if _, err := s.Transactions().ApplyOutcome(context.Background(), payment.ApplyInput{Reference: "nope"}); !errors.Is(err, payment.ErrUnknownReference) {
		t.Fatalf("expected unknown reference, got %v", err)
	}
}

func TestLimitGrowthProperty(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "254700000001", 5000)

	for n := 1; n <= 30; n++ {
		l, err := s.Loans().CreateForUser(ctx, approvedLoan(u.ID, 3000))
		if err != nil {
			t.Fatalf("round %d create loan: %v", n, err)
		}
		ref := "R" + l.ID
		if _, err := s.Transactions().Create(ctx, payment.CreateInput{LoanID: l.ID, Reference: ref, Amount: l.Total}); err != nil {
			t.Fatalf("round %d create tx: %v", n, err)
		}
		if _, err := s.Transactions().ApplyOutcome(ctx, payment.ApplyInput{Reference: ref, Outcome: payment.Outcome{Success: true}, LimitIncrement: 2000, LimitCap: 60000}); err != nil {
			t.Fatalf("round %d apply: %v", n, err)
		}
		want := int64(5000 + 2000*n)
		if want > 60000 {
			want = 60000
		}
		if got, _ := s.Loans().GetLoanLimit(ctx, u.ID); got != want {
			t.Fatalf("after %d repayments expected %d, got %d", n, want, got)
		}
	}
}

func TestRaiseLimitNeverDecreases(t *testing.T) {
	cases := []struct{ current, want int64 }{
		{5000, 7000},
		{59000, 60000},
		{60000, 60000},
		{70000, 70000},
	}
	for _, tc := range cases {
		if got := raiseLimit(tc.current, 2000, 60000); got != tc.want {
			t.Fatalf("raiseLimit(%d) = %d, want %d", tc.current, got, tc.want)
		}
	}
}

func TestOutboxClaimAndRetry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := seedUser(t, s, "254700000001", 5000)
	if _, err := s.Loans().CreateForUser(ctx, approvedLoan(u.ID, 3000)); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	outbox := s.Outbox()
	claimed, _ := outbox.ClaimPending(ctx, 10)
	if len(claimed) != 1 || claimed[0].Topic != loandomain.TopicApproved || claimed[0].Attempts != 1 {
		t.Fatalf("unexpected claim: %+v", claimed)
	}
	if again, _ := outbox.ClaimPending(ctx, 10); len(again) != 0 {
		t.Fatalf("processing job must not be claimed twice")
	}

	_ = outbox.MarkRetry(ctx, claimed[0].ID, time.Now().UTC().Add(time.Hour), "broker down")
	if later, _ := outbox.ClaimPending(ctx, 10); len(later) != 0 {
		t.Fatalf("retry must wait for available_at")
	}

	events, _ := outbox.ListUserEventsSince(ctx, 0, 10)
	if len(events) != 1 || events[0].UserID != u.ID {
		t.Fatalf("unexpected user events: %+v", events)
	}
	if latest, _ := outbox.LatestEventID(ctx); latest != claimed[0].ID {
		t.Fatalf("expected latest id %d, got %d", claimed[0].ID, latest)
	}
}
