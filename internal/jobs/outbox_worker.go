package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/microloan/backend/internal/events"
)

const (
	topicLoanApproved      = "loan.approved"
	topicPaymentReconciled = "payment.reconciled"
)

type OutboxJob struct {
	ID          int64
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int32
	LastError   string
	AvailableAt time.Time
}

type OutboxRepository interface {
	ClaimPending(ctx context.Context, limit int32) ([]OutboxJob, error)
	MarkDone(ctx context.Context, jobID int64) error
	MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
}

// Worker relays committed outbox rows to the event publisher. Delivery is at
// least once; consumers dedupe on the payload's reference or loan_id.
type Worker struct {
	outboxRepo   OutboxRepository
	publisher    events.Publisher
	logger       *slog.Logger
	maxAttempts  int32
	now          func() time.Time
	retryBackoff func(attempt int32) time.Duration
}

func NewWorker(outboxRepo OutboxRepository, publisher events.Publisher, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: 5,
		now:         func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int32) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*15) * time.Second
		},
	}
}

func (w *Worker) RunOnce(ctx context.Context, batchSize int32) error {
	jobs, err := w.outboxRepo.ClaimPending(ctx, batchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, job OutboxJob) error {
	switch job.Topic {
	case topicLoanApproved, topicPaymentReconciled:
		return w.publish(ctx, job)
	default:
		return w.handleJobError(ctx, job, errors.New("unsupported_topic"))
	}
}

func (w *Worker) publish(ctx context.Context, job OutboxJob) error {
	if !json.Valid(job.Payload) {
		return w.outboxRepo.MarkFailed(ctx, job.ID, "invalid_payload")
	}
	if err := w.publisher.Publish(ctx, job.Topic, job.Payload); err != nil {
		return w.handleJobError(ctx, job, err)
	}
	return w.outboxRepo.MarkDone(ctx, job.ID)
}

func (w *Worker) handleJobError(ctx context.Context, job OutboxJob, err error) error {
	msg := err.Error()
	if job.Attempts >= w.maxAttempts {
		w.logger.Error("outbox job failed", "job_id", job.ID, "topic", job.Topic, "attempts", job.Attempts, "error", msg)
		return w.outboxRepo.MarkFailed(ctx, job.ID, msg)
	}
	next := w.now().Add(w.retryBackoff(job.Attempts))
	w.logger.Warn("outbox job retry scheduled", "job_id", job.ID, "topic", job.Topic, "attempts", job.Attempts, "next", next, "error", msg)
	return w.outboxRepo.MarkRetry(ctx, job.ID, next, msg)
}

// Run drains the outbox every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration, batchSize int32) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", "interval", interval.String(), "batch_size", batchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := w.RunOnce(runCtx, batchSize)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("outbox worker run failed", "error", err)
			}
		}
	}
}
