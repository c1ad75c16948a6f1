package postgres

import (
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/ws"
)

var (
	_ loandomain.Repository = (*LoanRepository)(nil)
	_ payment.Repository    = (*TransactionRepository)(nil)
	_ payment.LoanReader    = (*LoanRepository)(nil)
	_ jobs.OutboxRepository = (*OutboxRepository)(nil)
	_ ws.EventSource        = (*OutboxRepository)(nil)
)
