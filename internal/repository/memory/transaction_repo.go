package memory

import (
	"context"
	"encoding/json"
	"time"

	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
)

type TransactionRepository struct {
	s *Store
}

func (r *TransactionRepository) Create(_ context.Context, in payment.CreateInput) (*payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.loans[in.LoanID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	if _, dup := r.s.txs[in.Reference]; dup {
		return nil, payment.ErrDuplicateReference
	}

	now := r.s.now()
	tx := &payment.Transaction{
		ID:        newID(),
		LoanID:    in.LoanID,
		UserID:    l.UserID,
		Reference: in.Reference,
		Amount:    in.Amount,
		Status:    payment.StatusPending,
		Metadata:  copyMetadata(in.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.txs[tx.Reference] = tx
	r.s.txOrder = append(r.s.txOrder, tx.Reference)
	return cloneTx(tx), nil
}

func (r *TransactionRepository) GetByReference(_ context.Context, reference string) (*payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.txs[reference]
	if !ok {
		return nil, payment.ErrUnknownReference
	}
	return cloneTx(tx), nil
}

func (r *TransactionRepository) ListByUser(_ context.Context, userID string) ([]payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]payment.Transaction, 0)
	for i := len(r.s.txOrder) - 1; i >= 0; i-- {
		tx := r.s.txs[r.s.txOrder[i]]
		if tx.UserID == userID {
			out = append(out, *cloneTx(tx))
		}
	}
	return out, nil
}

func (r *TransactionRepository) ListStalePending(_ context.Context, createdBefore time.Time, limit int32) ([]payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]payment.Transaction, 0)
	for _, ref := range r.s.txOrder {
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		tx := r.s.txs[ref]
		if tx.Status == payment.StatusPending && !tx.CreatedAt.After(createdBefore) {
			out = append(out, *cloneTx(tx))
		}
	}
	return out, nil
}

func (r *TransactionRepository) ApplyOutcome(_ context.Context, in payment.ApplyInput) (*payment.ApplyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, ok := r.s.txs[in.Reference]
	if !ok {
		return nil, payment.ErrUnknownReference
	}
	if payment.IsTerminal(tx.Status) {
		return &payment.ApplyRecord{Transaction: *cloneTx(tx), Applied: false}, nil
	}

	l := r.s.loans[tx.LoanID]
	u := r.s.users[tx.UserID]
	now := r.s.now()

	tx.GatewayStatus = in.Outcome.GatewayStatus
	tx.Message = in.Outcome.Message
	tx.UpdatedAt = now
	if in.Outcome.Success {
		tx.Status = payment.StatusSuccess
		// The limit grows once per repaid loan, not once per successful
		// reference; a loan may carry several initialized references.
		if l != nil && l.Status != loandomain.StatusRepaid {
			l.Status = loandomain.StatusRepaid
			l.UpdatedAt = now
			if u != nil {
				u.LoanLimit = raiseLimit(u.LoanLimit, in.LimitIncrement, in.LimitCap)
				u.UpdatedAt = now
			}
		}
	} else {
		tx.Status = payment.StatusFailed
	}

	ev := payment.ReconciledEvent{
		Reference: tx.Reference,
		LoanID:    tx.LoanID,
		UserID:    tx.UserID,
		Status:    tx.Status,
		Amount:    tx.Amount,
	}
	if l != nil {
		ev.LoanStatus = l.Status
	}
	if u != nil {
		ev.LoanLimit = u.LoanLimit
	}
	payload, _ := json.Marshal(ev)
	r.s.enqueueLocked(payment.TopicReconciled, tx.UserID, payload)

	return &payment.ApplyRecord{Transaction: *cloneTx(tx), Applied: true}, nil
}

// raiseLimit never lowers a limit, even one already above the cap.
func raiseLimit(current, increment, limitCap int64) int64 {
	next := current + increment
	if next > limitCap {
		next = limitCap
	}
	if next < current {
		return current
	}
	return next
}

func cloneTx(tx *payment.Transaction) *payment.Transaction {
	cp := *tx
	cp.Metadata = copyMetadata(tx.Metadata)
	return &cp
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
