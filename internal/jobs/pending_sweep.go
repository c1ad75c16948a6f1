package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type PendingSettler interface {
	SweepPending(ctx context.Context, minAge time.Duration, batch int32) (int, error)
}

// PendingSweep re-verifies transactions that stayed pending because the user
// never polled and no webhook arrived.
type PendingSweep struct {
	settler PendingSettler
	logger  *slog.Logger
	minAge  time.Duration
	batch   int32
	timeout time.Duration
}

func NewPendingSweep(settler PendingSettler, logger *slog.Logger, minAge time.Duration, batch int32) *PendingSweep {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 50
	}
	return &PendingSweep{settler: settler, logger: logger, minAge: minAge, batch: batch, timeout: 2 * time.Minute}
}

func (s *PendingSweep) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	settled, err := s.settler.SweepPending(ctx, s.minAge, s.batch)
	if err != nil {
		s.logger.Error("pending sweep failed", "error", err, "settled", settled)
		return
	}
	s.logger.Info("pending sweep finished", "settled", settled)
}

// NewScheduler wires the sweep into a cron that skips a tick while the previous
// run is still going.
func NewScheduler(sweep *PendingSweep, schedule string, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddJob(schedule, cron.FuncJob(sweep.Run)); err != nil {
		return nil, err
	}
	return c, nil
}
