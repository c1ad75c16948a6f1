package memory

import (
	"context"
	"time"

	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/ws"
)

type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) ClaimPending(_ context.Context, limit int32) ([]jobs.OutboxJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	now := r.s.now()
	out := make([]jobs.OutboxJob, 0)
	for _, row := range r.s.outbox {
		if int32(len(out)) >= limit {
			break
		}
		if row.job.Status != "pending" || row.job.AvailableAt.After(now) {
			continue
		}
		row.job.Status = "processing"
		row.job.Attempts++
		out = append(out, row.job)
	}
	return out, nil
}

func (r *OutboxRepository) MarkDone(_ context.Context, jobID int64) error {
	return r.update(jobID, func(j *jobs.OutboxJob) {
		j.Status = "done"
		j.LastError = ""
	})
}

func (r *OutboxRepository) MarkRetry(_ context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error {
	return r.update(jobID, func(j *jobs.OutboxJob) {
		j.Status = "pending"
		j.AvailableAt = nextAvailableAt
		j.LastError = lastError
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, jobID int64, lastError string) error {
	return r.update(jobID, func(j *jobs.OutboxJob) {
		j.Status = "failed"
		j.LastError = lastError
	})
}

func (r *OutboxRepository) update(jobID int64, fn func(*jobs.OutboxJob)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.outbox {
		if row.job.ID == jobID {
			fn(&row.job)
			return nil
		}
	}
	return nil
}

// Jobs returns a snapshot of every outbox row, oldest first.
func (r *OutboxRepository) Jobs() []jobs.OutboxJob {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]jobs.OutboxJob, 0, len(r.s.outbox))
	for _, row := range r.s.outbox {
		out = append(out, row.job)
	}
	return out
}

func (r *OutboxRepository) ListUserEventsSince(_ context.Context, lastID int64, limit int32) ([]ws.UserEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]ws.UserEvent, 0)
	for _, row := range r.s.outbox {
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		if row.job.ID <= lastID {
			continue
		}
		out = append(out, ws.UserEvent{
			ID:         row.job.ID,
			Topic:      row.job.Topic,
			UserID:     row.userID,
			Payload:    append([]byte(nil), row.job.Payload...),
			RecordedAt: row.createdAt,
		})
	}
	return out, nil
}

func (r *OutboxRepository) LatestEventID(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.nextOutbox, nil
}
