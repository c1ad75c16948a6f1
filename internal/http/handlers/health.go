package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// readinessCheck is one dependency probed by /ready. A failed required check
// takes the instance out of rotation; a failed optional one only degrades it.
type readinessCheck struct {
	name     string
	pinger   Pinger
	required bool
}

type HealthHandler struct {
	checks  []readinessCheck
	timeout time.Duration
	version string
}

// NewHealthHandler always checks the ledger store; optional dependencies are
// added with WithOptional.
func NewHealthHandler(store Pinger, version string) *HealthHandler {
	return &HealthHandler{
		checks:  []readinessCheck{{name: "database", pinger: store, required: true}},
		timeout: 2 * time.Second,
		version: version,
	}
}

// WithOptional adds a dependency the API can run without, such as the rate
// limiter's Redis, which fails open.
func (h *HealthHandler) WithOptional(name string, p Pinger) *HealthHandler {
	if p != nil {
		h.checks = append(h.checks, readinessCheck{name: name, pinger: p})
	}
	return h
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "microloan-backend",
		"version": h.version,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make(gin.H, len(h.checks))
	for _, chk := range h.checks {
		if chk.pinger != nil && chk.pinger.Ping(ctx) == nil {
			results[chk.name] = "ok"
			continue
		}
		results[chk.name] = "error"
		if chk.required {
			status, code = "not_ready", http.StatusServiceUnavailable
		} else if code == http.StatusOK {
			status = "degraded"
		}
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}
