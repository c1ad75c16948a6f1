package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// UserEvent is a committed ledger event addressed to one user.
type UserEvent struct {
	ID         int64
	Topic      string
	UserID     string
	Payload    json.RawMessage
	RecordedAt time.Time
}

type EventSource interface {
	ListUserEventsSince(ctx context.Context, lastID int64, limit int32) ([]UserEvent, error)
	LatestEventID(ctx context.Context) (int64, error)
}

var eventNames = map[string]string{
	"loan.approved":      "loan_approved",
	"payment.reconciled": "payment_reconciled",
}

func UserChannel(userID string) string {
	return "user:" + userID
}

// lookbackIDs is how far below the highest delivered id each poll re-reads.
// Outbox ids come from a sequence and are assigned before commit, so a lower
// id can become visible after a higher one.
const lookbackIDs = 200

const pollBatch = lookbackIDs + 100

type Notifier struct {
	source       EventSource
	hub          *Hub
	logger       *slog.Logger
	pollInterval time.Duration
	lookback     int64
	// floor is the newest id at startup; nothing at or below it is pushed.
	floor     int64
	lastID    int64
	delivered map[int64]struct{}
}

func NewNotifier(source EventSource, hub *Hub, logger *slog.Logger, pollInterval time.Duration) *Notifier {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		source:       source,
		hub:          hub,
		logger:       logger,
		pollInterval: pollInterval,
		lookback:     lookbackIDs,
		delivered:    make(map[int64]struct{}),
	}
}

// Run starts from the newest committed event so reconnecting servers do not
// replay history to clients.
func (n *Notifier) Run(ctx context.Context) error {
	latest, err := n.source.LatestEventID(ctx)
	if err != nil {
		return err
	}
	n.floor = latest
	n.lastID = latest

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.tick(ctx); err != nil {
				n.logger.Warn("ws notifier poll failed", "error", err)
			}
		}
	}
}

func (n *Notifier) windowStart() int64 {
	if start := n.lastID - n.lookback; start > n.floor {
		return start
	}
	return n.floor
}

func (n *Notifier) tick(ctx context.Context) error {
	since := n.windowStart()
	events, err := n.source.ListUserEventsSince(ctx, since, pollBatch)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.ID <= n.floor {
			continue
		}
		if _, seen := n.delivered[ev.ID]; seen {
			continue
		}
		n.delivered[ev.ID] = struct{}{}
		if ev.ID > n.lastID {
			n.lastID = ev.ID
		}
		name, ok := eventNames[ev.Topic]
		if !ok || ev.UserID == "" {
			continue
		}
		payload, _ := json.Marshal(map[string]any{
			"event":       name,
			"data":        ev.Payload,
			"recorded_at": ev.RecordedAt.UTC().Format(time.RFC3339),
		})
		n.hub.Publish(UserChannel(ev.UserID), payload)
	}

	// Ids below the next window are never read again.
	next := n.windowStart()
	for id := range n.delivered {
		if id <= next {
			delete(n.delivered, id)
		}
	}
	return nil
}
