// Package fake is a scriptable payment gateway for tests and
// PAYMENT_GATEWAY_MODE=fake. Unscripted references verify as successful for
// the amount they were initialized with.
package fake

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/microloan/backend/internal/domain/payment"
)

type Gateway struct {
	Secret string

	mu          sync.Mutex
	initialized map[string]int64
	verdicts    map[string]*payment.VerifyResponse
	initErr     error
	verifyErr   error
	verifyDelay time.Duration
	verifyCalls int
	initCalls   int
	lastInit    payment.InitializeRequest
}

func New(secret string) *Gateway {
	return &Gateway{
		Secret:      secret,
		initialized: map[string]int64{},
		verdicts:    map[string]*payment.VerifyResponse{},
	}
}

func (g *Gateway) Initialize(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	g.lastInit = req
	if g.initErr != nil {
		return nil, g.initErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.initialized[req.Reference] = req.Amount
	return &payment.InitializeResponse{
		AuthorizationURL: fmt.Sprintf("https://checkout.fake/%s", req.Reference),
		AccessCode:       "fake_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

// Verify blocks for the configured delay or until ctx expires, whichever is
// first, so callers' timeouts can be exercised.
func (g *Gateway) Verify(ctx context.Context, reference string) (*payment.VerifyResponse, error) {
	g.mu.Lock()
	g.verifyCalls++
	delay, verr := g.verifyDelay, g.verifyErr
	verdict, scripted := g.verdicts[reference]
	amount, known := g.initialized[reference]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, ctx.Err())
		}
	}
	if verr != nil {
		return nil, verr
	}
	if scripted {
		cp := *verdict
		return &cp, nil
	}
	if !known {
		return &payment.VerifyResponse{Status: "failed", Message: "Transaction reference not found"}, nil
	}
	return &payment.VerifyResponse{Success: true, Amount: amount, Status: "success", Message: "Approved"}, nil
}

func (g *Gateway) ValidateSignature(rawBody []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(g.Secret, rawBody)), []byte(signature))
}

// Sign produces the signature ValidateSignature expects.
func Sign(secret string, rawBody []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *Gateway) SetVerdict(reference string, v payment.VerifyResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verdicts[reference] = &v
}

func (g *Gateway) SetInitializeError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initErr = err
}

func (g *Gateway) SetVerifyError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

func (g *Gateway) SetVerifyDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyDelay = d
}

func (g *Gateway) VerifyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

func (g *Gateway) InitializeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls
}

func (g *Gateway) LastInitializeRequest() payment.InitializeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastInit
}
