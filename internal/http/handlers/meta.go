package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/domain/fee"
)

// LoanPolicy is the public lending policy clients use to pre-validate input.
type LoanPolicy struct {
	MinPrincipal   int64 `json:"min_principal"`
	MaxPrincipal   int64 `json:"max_principal"`
	DefaultLimit   int64 `json:"default_limit"`
	LimitIncrement int64 `json:"limit_increment"`
	LimitCap       int64 `json:"limit_cap"`
}

type MetaInfo struct {
	Env         string
	Version     string
	StoreMode   string
	GatewayMode string
	Policy      LoanPolicy
}

type MetaHandler struct {
	info MetaInfo
}

// NewMetaHandler fills the principal bounds from the fee schedule, which is
// the only source of truth for them.
func NewMetaHandler(info MetaInfo) *MetaHandler {
	info.Policy.MinPrincipal = fee.MinPrincipal
	info.Policy.MaxPrincipal = fee.MaxPrincipal
	return &MetaHandler{info: info}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":     "MicroLoan API",
		"version":  h.info.Version,
		"env":      h.info.Env,
		"store":    h.info.StoreMode,
		"gateway":  h.info.GatewayMode,
		"currency": "KES",
		"loans":    h.info.Policy,
	})
}
