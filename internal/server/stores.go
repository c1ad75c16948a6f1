package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/config"
	"github.com/microloan/backend/internal/db"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/http/handlers"
	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/repository/memory"
	postgresrepo "github.com/microloan/backend/internal/repository/postgres"
	"github.com/microloan/backend/internal/ws"
)

// OutboxStore is both the relay queue and the realtime event feed.
type OutboxStore interface {
	jobs.OutboxRepository
	ws.EventSource
}

type UserStore interface {
	auth.Repository
	payment.UserDirectory
}

type Stores struct {
	Users        UserStore
	Loans        loandomain.Repository
	Transactions payment.Repository
	Outbox       OutboxStore
	Pinger       handlers.Pinger
	// InProcess is true when state lives in this process only, so the outbox
	// relay must run alongside the API.
	InProcess bool
	Close     func()
}

// OpenStores selects the memory or postgres backend from STORE_MODE.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreMode)) {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		st := memory.NewStore()
		return &Stores{
			Users:        st.Users(),
			Loans:        st.Loans(),
			Transactions: st.Transactions(),
			Outbox:       st.Outbox(),
			Pinger:       st,
			InProcess:    true,
			Close:        func() {},
		}, nil
	case "", "postgres":
		pool, err := db.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return &Stores{
			Users:        db.NewAuthRepository(pool),
			Loans:        postgresrepo.NewLoanRepository(pool),
			Transactions: postgresrepo.NewTransactionRepository(pool),
			Outbox:       postgresrepo.NewOutboxRepository(pool),
			Pinger:       pool,
			Close:        pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported STORE_MODE %q", cfg.StoreMode)
	}
}
