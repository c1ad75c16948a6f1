package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	loandomain "github.com/microloan/backend/internal/domain/loan"
)

const (
	eventChargeSuccess = "charge.success"
	eventChargeFailed  = "charge.failed"

	// Provider payloads carry amounts in subunits (cents).
	subunitsPerUnit = 100

	emailDomain   = "microloan.app"
	paymentMethod = "mpesa"

	msgRepaid          = "Payment successful. Loan marked as repaid."
	msgFailed          = "Payment verification failed"
	msgPending         = "Payment not yet completed. Try verifying again shortly."
	msgTimeout         = "Payment gateway did not respond in time. Try verifying again."
	msgGatewayDegraded = "Payment gateway unavailable. Try verifying again."
)

type LoanReader interface {
	GetByID(ctx context.Context, id string) (*loandomain.Entity, error)
}

type Config struct {
	LimitIncrement int64
	LimitCap       int64
	GatewayTimeout time.Duration
}

type Service struct {
	txRepo       Repository
	loanRepo     LoanReader
	users        UserDirectory
	gateway      Gateway
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
	newReference func(loanID string) string
}

func NewService(txRepo Repository, loanRepo LoanReader, users UserDirectory, gateway Gateway, cfg Config, logger *slog.Logger) *Service {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		txRepo:       txRepo,
		loanRepo:     loanRepo,
		users:        users,
		gateway:      gateway,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newReference: NewReference,
	}
}

// NewReference builds LOAN_<loan id prefix>_<8 upper hex>. Uniqueness is
// enforced by the store; the random suffix keeps collisions rare.
func NewReference(loanID string) string {
	prefix := strings.ReplaceAll(loanID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("LOAN_%s_%s", prefix, strings.ToUpper(suffix))
}

// Initialize asks the gateway for a checkout for the loan's full total and
// records a pending transaction only once the gateway has accepted it.
func (s *Service) Initialize(ctx context.Context, userID string, in InitializeInput) (*InitializeResult, error) {
	loanID := strings.TrimSpace(in.LoanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}

	l, err := s.loanRepo.GetByID(ctx, loanID)
	if errors.Is(err, loandomain.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.UserID != userID {
		return nil, ErrNotFound
	}
	if l.Status == loandomain.StatusRepaid {
		return nil, ErrLoanAlreadyRepaid
	}

	phone, err := s.users.GetPhone(ctx, userID)
	if err != nil {
		return nil, err
	}

	reference := s.newReference(l.ID)
	metadata := map[string]string{
		"loan_id":        l.ID,
		"user_phone":     phone,
		"payment_method": paymentMethod,
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	resp, err := s.gateway.Initialize(gctx, InitializeRequest{
		Email:       fmt.Sprintf("%s@%s", phone, emailDomain),
		Phone:       phone,
		Amount:      l.Total,
		Reference:   reference,
		CallbackURL: strings.TrimSpace(in.CallbackURL),
		Metadata:    metadata,
	})
	if err != nil {
		s.logger.Warn("payment initialize failed", "loan_id", l.ID, "reference", reference, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if _, err := s.txRepo.Create(ctx, CreateInput{
		LoanID:    l.ID,
		Reference: reference,
		Amount:    l.Total,
		Metadata:  metadata,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("payment initialized", "loan_id", l.ID, "reference", reference, "amount", l.Total)
	return &InitializeResult{
		RedirectURL: resp.AuthorizationURL,
		AccessCode:  resp.AccessCode,
		Reference:   reference,
	}, nil
}

// Verify is the user-facing poll. Ownership is checked before the gateway is
// contacted.
func (s *Service) Verify(ctx context.Context, userID, reference string) (*Result, error) {
	tx, err := s.lookup(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, ErrNotAuthorized
	}
	return s.reconcile(ctx, tx)
}

func (s *Service) lookup(ctx context.Context, reference string) (*Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrUnknownReference
	}
	return s.txRepo.GetByReference(ctx, reference)
}

func (s *Service) reconcile(ctx context.Context, tx *Transaction) (*Result, error) {
	if IsTerminal(tx.Status) {
		return resultFrom(*tx, false), nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	vr, err := s.gateway.Verify(gctx, tx.Reference)
	if err != nil {
		status, msg := StatusPending, msgGatewayDegraded
		if errors.Is(err, ErrGatewayTimeout) || errors.Is(err, context.DeadlineExceeded) {
			status, msg = ResultTimeout, msgTimeout
		}
		s.logger.Warn("payment verify unavailable", "reference", tx.Reference, "status", status, "error", err)
		return &Result{Status: status, Reference: tx.Reference, Message: msg}, nil
	}

	switch {
	case vr.Success:
		if vr.Amount != tx.Amount {
			s.logger.Warn("payment amount mismatch", "reference", tx.Reference, "expected", tx.Amount, "reported", vr.Amount)
		}
		return s.ApplyOutcome(ctx, tx.Reference, Outcome{Success: true, Amount: vr.Amount, GatewayStatus: vr.Status, Message: msgRepaid})
	case finalFailureStatuses[strings.ToLower(vr.Status)]:
		return s.ApplyOutcome(ctx, tx.Reference, Outcome{GatewayStatus: vr.Status, Message: msgFailed})
	default:
		return &Result{Status: StatusPending, Reference: tx.Reference, Message: msgPending}, nil
	}
}

// ApplyOutcome moves a pending transaction to its terminal state exactly once.
// Later calls for the same reference return the stored result and change
// nothing.
func (s *Service) ApplyOutcome(ctx context.Context, reference string, outcome Outcome) (*Result, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrUnknownReference
	}
	rec, err := s.txRepo.ApplyOutcome(ctx, ApplyInput{
		Reference:      reference,
		Outcome:        outcome,
		LimitIncrement: s.cfg.LimitIncrement,
		LimitCap:       s.cfg.LimitCap,
	})
	if err != nil {
		return nil, err
	}
	if rec.Applied {
		s.logger.Info("payment reconciled", "reference", reference, "status", rec.Transaction.Status, "loan_id", rec.Transaction.LoanID)
	} else {
		s.logger.Debug("payment already reconciled", "reference", reference, "status", rec.Transaction.Status)
	}
	return resultFrom(rec.Transaction, rec.Applied), nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// HandleWebhook applies a pushed charge event. A present but wrong signature
// is rejected; an absent one is acknowledged without being trusted.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookAck, error) {
	signature = strings.TrimSpace(signature)
	if signature != "" && !s.gateway.ValidateSignature(rawBody, signature) {
		return nil, ErrSignatureInvalid
	}

	var ev webhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ack := &WebhookAck{Event: ev.Event, Reference: ev.Data.Reference}

	if signature == "" {
		s.logger.Warn("webhook without signature ignored", "event", ev.Event, "reference", ev.Data.Reference)
		return ack, nil
	}

	var outcome Outcome
	switch ev.Event {
	case eventChargeSuccess:
		outcome = Outcome{Success: true, Amount: ev.Data.Amount / subunitsPerUnit, GatewayStatus: ev.Data.Status, Message: msgRepaid}
	case eventChargeFailed:
		outcome = Outcome{GatewayStatus: ev.Data.Status, Message: msgFailed}
	default:
		return ack, nil
	}

	res, err := s.ApplyOutcome(ctx, ev.Data.Reference, outcome)
	if errors.Is(err, ErrUnknownReference) {
		s.logger.Warn("webhook for unknown reference", "event", ev.Event, "reference", ev.Data.Reference)
		return ack, nil
	}
	if err != nil {
		return nil, err
	}
	ack.Handled = true
	ack.Status = res.Status
	return ack, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	items, err := s.txRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return items, nil
}

// SweepPending re-verifies pending transactions older than minAge and returns
// how many reached a terminal state.
func (s *Service) SweepPending(ctx context.Context, minAge time.Duration, batch int32) (int, error) {
	stale, err := s.txRepo.ListStalePending(ctx, s.now().Add(-minAge), batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, tx := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		tx := tx
		res, err := s.reconcile(ctx, &tx)
		if err != nil {
			s.logger.Error("pending sweep reconcile failed", "reference", tx.Reference, "error", err)
			continue
		}
		if res.Applied {
			settled++
		}
	}
	return settled, nil
}

func resultFrom(tx Transaction, applied bool) *Result {
	res := &Result{Status: tx.Status, Reference: tx.Reference, Message: tx.Message, Applied: applied}
	switch tx.Status {
	case StatusSuccess:
		res.Amount = tx.Amount
		if res.Message == "" {
			res.Message = msgRepaid
		}
	case StatusFailed:
		if res.Message == "" {
			res.Message = msgFailed
		}
	default:
		if res.Message == "" {
			res.Message = msgPending
		}
	}
	return res
}
