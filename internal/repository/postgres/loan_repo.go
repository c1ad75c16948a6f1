package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	loandomain "github.com/microloan/backend/internal/domain/loan"
)

type LoanRepository struct {
	pool *pgxpool.Pool
}

func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

const loanColumns = `id, user_id, amount, fee, total, status, created_at, updated_at`

func scanLoan(row pgx.Row) (*loandomain.Entity, error) {
	out := &loandomain.Entity{}
	err := row.Scan(&out.ID, &out.UserID, &out.Amount, &out.Fee, &out.Total, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateForUser locks the user row so concurrent applications from the same
// user serialize; the partial unique index catches anything that slips past.
func (r *LoanRepository) CreateForUser(ctx context.Context, in loandomain.CreateInput) (*loandomain.Entity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var limit int64
	err = tx.QueryRow(ctx, `SELECT loan_limit FROM users WHERE id = $1 FOR UPDATE`, in.UserID).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, loandomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if in.Amount > limit {
		return nil, loandomain.ErrLimitExceeded
	}

	var active bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE user_id = $1 AND status = ANY($2))`, in.UserID, loandomain.ActiveStatuses).Scan(&active)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, loandomain.ErrActiveLoanExists
	}

	q := `
INSERT INTO loans (user_id, amount, fee, total, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + loanColumns
	out, err := scanLoan(tx.QueryRow(ctx, q, in.UserID, in.Amount, in.Fee, in.Total, in.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "loans_one_active_per_user" {
			return nil, loandomain.ErrActiveLoanExists
		}
		return nil, err
	}

	payload, _ := json.Marshal(loandomain.ApprovedEvent{LoanID: out.ID, UserID: out.UserID, Amount: out.Amount, Fee: out.Fee, Total: out.Total})
	if err := enqueueTx(ctx, tx, loandomain.TopicApproved, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (*loandomain.Entity, error) {
	if !isUUID(id) {
		return nil, loandomain.ErrNotFound
	}
	out, err := scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, loandomain.ErrNotFound
	}
	return out, err
}

func (r *LoanRepository) ListByUser(ctx context.Context, userID string) ([]loandomain.Entity, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]loandomain.Entity, 0)
	for rows.Next() {
		e, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepository) GetLoanLimit(ctx context.Context, userID string) (int64, error) {
	var limit int64
	err := r.pool.QueryRow(ctx, `SELECT loan_limit FROM users WHERE id = $1`, userID).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, loandomain.ErrUserNotFound
	}
	return limit, err
}

// isUUID keeps malformed ids from reaching Postgres as a cast error.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
