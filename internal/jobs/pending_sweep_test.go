package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microloan/backend/internal/jobs"
)

type fakeSettler struct {
	calls  int
	minAge time.Duration
	batch  int32
	err    error
}

func (f *fakeSettler) SweepPending(_ context.Context, minAge time.Duration, batch int32) (int, error) {
	f.calls++
	f.minAge = minAge
	f.batch = batch
	return 1, f.err
}

func TestPendingSweepRunPassesSettings(t *testing.T) {
	settler := &fakeSettler{}
	sweep := jobs.NewPendingSweep(settler, nil, 10*time.Minute, 0)

	sweep.Run()

	if settler.calls != 1 {
		t.Fatalf("expected one call, got %d", settler.calls)
	}
	if settler.minAge != 10*time.Minute || settler.batch != 50 {
		t.Fatalf("unexpected settings minAge=%s batch=%d", settler.minAge, settler.batch)
	}
}

func TestPendingSweepRunSurvivesErrors(t *testing.T) {
	settler := &fakeSettler{err: errors.New("db down")}
	jobs.NewPendingSweep(settler, nil, time.Minute, 5).Run()
	if settler.calls != 1 {
		t.Fatalf("expected one call")
	}
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	sweep := jobs.NewPendingSweep(&fakeSettler{}, nil, time.Minute, 5)
	if _, err := jobs.NewScheduler(sweep, "not a schedule", nil); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	c, err := jobs.NewScheduler(sweep, "@every 5m", nil)
	if err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry")
	}
}
