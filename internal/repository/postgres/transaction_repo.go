package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
)

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const txColumns = `t.id, t.loan_id, l.user_id, t.reference, t.amount, t.status, t.metadata, t.gateway_status, t.message, t.created_at, t.updated_at`

func scanTransaction(row pgx.Row) (*payment.Transaction, error) {
	out := &payment.Transaction{}
	var meta []byte
	err := row.Scan(&out.ID, &out.LoanID, &out.UserID, &out.Reference, &out.Amount, &out.Status, &meta,
		&out.GatewayStatus, &out.Message, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	out.Metadata = map[string]string{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &out.Metadata); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *TransactionRepository) Create(ctx context.Context, in payment.CreateInput) (*payment.Transaction, error) {
	if in.Metadata == nil {
		in.Metadata = map[string]string{}
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, err
	}
	q := `
WITH inserted AS (
  INSERT INTO transactions (loan_id, reference, amount, status, metadata)
  VALUES ($1, $2, $3, 'pending', $4::jsonb)
  RETURNING *
)
SELECT ` + txColumns + `
FROM inserted t
JOIN loans l ON l.id = t.loan_id
`
	out, err := scanTransaction(r.pool.QueryRow(ctx, q, in.LoanID, in.Reference, in.Amount, meta))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, payment.ErrDuplicateReference
			case "23503":
				return nil, payment.ErrNotFound
			}
		}
		return nil, err
	}
	return out, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions t JOIN loans l ON l.id = t.loan_id WHERE t.reference = $1`
	out, err := scanTransaction(r.pool.QueryRow(ctx, q, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrUnknownReference
	}
	return out, err
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]payment.Transaction, error) {
	q := `
SELECT ` + txColumns + `
FROM transactions t
JOIN loans l ON l.id = t.loan_id
WHERE l.user_id = $1
ORDER BY t.created_at DESC, t.id DESC
`
	return r.list(ctx, q, userID)
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int32) ([]payment.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
SELECT ` + txColumns + `
FROM transactions t
JOIN loans l ON l.id = t.loan_id
WHERE t.status = 'pending' AND t.created_at <= $1
ORDER BY t.created_at ASC
LIMIT $2
`
	return r.list(ctx, q, createdBefore, limit)
}

func (r *TransactionRepository) list(ctx context.Context, q string, args ...any) ([]payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]payment.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyOutcome holds the transaction row lock for the whole read-modify-write,
// so a concurrent poll and webhook for one reference apply once.
func (r *TransactionRepository) ApplyOutcome(ctx context.Context, in payment.ApplyInput) (*payment.ApplyRecord, error) {
	dbtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	q := `SELECT ` + txColumns + ` FROM transactions t JOIN loans l ON l.id = t.loan_id WHERE t.reference = $1 FOR UPDATE OF t`
	cur, err := scanTransaction(dbtx.QueryRow(ctx, q, in.Reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrUnknownReference
	}
	if err != nil {
		return nil, err
	}
	if payment.IsTerminal(cur.Status) {
		return &payment.ApplyRecord{Transaction: *cur, Applied: false}, nil
	}

	status := payment.StatusFailed
	if in.Outcome.Success {
		status = payment.StatusSuccess
	}
	err = dbtx.QueryRow(ctx, `
UPDATE transactions
SET status = $2, gateway_status = $3, message = $4, updated_at = NOW()
WHERE id = $1
RETURNING status, gateway_status, message, updated_at
`, cur.ID, status, in.Outcome.GatewayStatus, in.Outcome.Message).Scan(&cur.Status, &cur.GatewayStatus, &cur.Message, &cur.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ev := payment.ReconciledEvent{
		Reference: cur.Reference,
		LoanID:    cur.LoanID,
		UserID:    cur.UserID,
		Status:    cur.Status,
		Amount:    cur.Amount,
	}

	repaidNow := false
	if in.Outcome.Success {
		// Only the reference that moves the loan to repaid raises the limit.
		err = dbtx.QueryRow(ctx, `
UPDATE loans SET status = $2, updated_at = NOW()
WHERE id = $1 AND status <> $2
RETURNING status
`, cur.LoanID, loandomain.StatusRepaid).Scan(&ev.LoanStatus)
		switch {
		case err == nil:
			repaidNow = true
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, err
		}
	}
	if repaidNow {
		err = dbtx.QueryRow(ctx, `
UPDATE users
SET loan_limit = GREATEST(loan_limit, LEAST(loan_limit + $2, $3)), updated_at = NOW()
WHERE id = $1
RETURNING loan_limit
`, cur.UserID, in.LimitIncrement, in.LimitCap).Scan(&ev.LoanLimit)
		if err != nil {
			return nil, err
		}
	} else {
		err = dbtx.QueryRow(ctx, `
SELECT l.status, u.loan_limit FROM loans l JOIN users u ON u.id = l.user_id WHERE l.id = $1
`, cur.LoanID).Scan(&ev.LoanStatus, &ev.LoanLimit)
		if err != nil {
			return nil, err
		}
	}

	payload, _ := json.Marshal(ev)
	if err := enqueueTx(ctx, dbtx, payment.TopicReconciled, payload); err != nil {
		return nil, err
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, err
	}
	return &payment.ApplyRecord{Transaction: *cur, Applied: true}, nil
}
