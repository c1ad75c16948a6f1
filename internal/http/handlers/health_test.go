package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/http/handlers"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, h gin.HandlerFunc) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	return w.Code, body
}

func TestReadyReportsEachDependency(t *testing.T) {
	down := errors.New("down")
	cases := []struct {
		name   string
		store  error
		redis  error
		code   int
		status string
	}{
		{"all up", nil, nil, http.StatusOK, "ready"},
		{"redis down", nil, down, http.StatusOK, "degraded"},
		{"store down", down, nil, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(stubPinger{tc.store}, "v1").WithOptional("redis", stubPinger{tc.redis})
			code, body := get(t, h.Ready)
			if code != tc.code || body["status"] != tc.status {
				t.Fatalf("expected %d %s, got %d %v", tc.code, tc.status, code, body)
			}
			checks := body["checks"].(map[string]any)
			if _, ok := checks["database"]; !ok {
				t.Fatalf("database check missing: %v", checks)
			}
			if _, ok := checks["redis"]; !ok {
				t.Fatalf("redis check missing: %v", checks)
			}
		})
	}
}

func TestReadyWithoutStoreIsNotReady(t *testing.T) {
	code, _ := get(t, handlers.NewHealthHandler(nil, "v1").Ready)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestMetaPublishesLoanPolicy(t *testing.T) {
	h := handlers.NewMetaHandler(handlers.MetaInfo{
		Env:       "test",
		Version:   "v1.2.3",
		StoreMode: "memory",
		Policy:    handlers.LoanPolicy{DefaultLimit: 5000, LimitIncrement: 2000, LimitCap: 60000},
	})
	code, body := get(t, h.GetMeta)
	if code != http.StatusOK || body["version"] != "v1.2.3" || body["store"] != "memory" {
		t.Fatalf("unexpected meta: %d %v", code, body)
	}
	loans := body["loans"].(map[string]any)
	if loans["min_principal"].(float64) != 3000 || loans["max_principal"].(float64) != 60000 || loans["limit_cap"].(float64) != 60000 {
		t.Fatalf("unexpected policy: %v", loans)
	}
}
