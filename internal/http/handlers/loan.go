package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/domain/fee"
	loandomain "github.com/microloan/backend/internal/domain/loan"
)

type LoanService interface {
	Apply(ctx context.Context, userID string, amount int64) (*loandomain.Entity, error)
	Preview(amount int64) (fee.Quote, error)
	History(ctx context.Context, userID string) (*loandomain.History, error)
	Get(ctx context.Context, userID, loanID string) (*loandomain.Entity, error)
}

type LoanHandler struct {
	loanService LoanService
}

type previewRequest struct {
	Principal int64 `json:"principal"`
}

type applyRequest struct {
	Amount int64 `json:"amount"`
}

func NewLoanHandler(loanService LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

func (h *LoanHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, err, "principal must be a whole number")
		return
	}
	q, err := h.loanService.Preview(req.Principal)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"principal":       q.Principal,
		"fee":             q.Fee,
		"total_repayable": q.TotalRepayable,
	})
}

func (h *LoanHandler) Apply(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, err, "amount must be a whole number")
		return
	}
	item, err := h.loanService.Apply(c.Request.Context(), uid, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *LoanHandler) History(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	hist, err := h.loanService.History(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *LoanHandler) GetLoan(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	item, err := h.loanService.Get(c.Request.Context(), uid, strings.TrimSpace(c.Param("loanId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
