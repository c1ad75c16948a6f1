// Package memory is an in-process ledger store used by tests and by
// STORE_MODE=memory. One mutex guards every table, so each method is atomic
// in the same way a single Postgres transaction is.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microloan/backend/internal/db"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/jobs"
)

type Store struct {
	mu sync.Mutex

	users      map[string]*db.User
	byPhone    map[string]string
	byIDNumber map[string]string
	sessions   map[string]*db.Session
	loans      map[string]*loandomain.Entity
	loanOrder  []string
	txs        map[string]*payment.Transaction
	txOrder    []string
	outbox     []*outboxRow
	nextOutbox int64
	now        func() time.Time
}

type outboxRow struct {
	job       jobs.OutboxJob
	userID    string
	createdAt time.Time
}

func NewStore() *Store {
	return &Store{
		users:      map[string]*db.User{},
		byPhone:    map[string]string{},
		byIDNumber: map[string]string{},
		sessions:   map[string]*db.Session{},
		loans:      map[string]*loandomain.Entity{},
		txs:        map[string]*payment.Transaction{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Users() *AuthRepository               { return &AuthRepository{s: s} }
func (s *Store) Loans() *LoanRepository               { return &LoanRepository{s: s} }
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }
func (s *Store) Outbox() *OutboxRepository            { return &OutboxRepository{s: s} }

// enqueueLocked appends an outbox row. Callers hold s.mu.
func (s *Store) enqueueLocked(topic, userID string, payload []byte) {
	s.nextOutbox++
	now := s.now()
	s.outbox = append(s.outbox, &outboxRow{
		job: jobs.OutboxJob{
			ID:          s.nextOutbox,
			Topic:       topic,
			Payload:     payload,
			Status:      "pending",
			AvailableAt: now,
		},
		userID:    userID,
		createdAt: now,
	})
}

func newID() string { return uuid.NewString() }
