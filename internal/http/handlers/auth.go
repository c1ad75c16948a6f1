package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/db"
)

type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput, userAgent, ipAddress string) (*auth.AuthTokens, error)
	Login(ctx context.Context, phone, password, userAgent, ipAddress string) (*auth.AuthTokens, error)
	Refresh(ctx context.Context, refreshToken, userAgent, ipAddress string) (*auth.AuthTokens, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID string) (*db.User, error)
}

type AuthHandler struct {
	authService AuthService
	cookieCfg   auth.CookieConfig
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

type loginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func NewAuthHandler(authService AuthService, cookieCfg auth.CookieConfig, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{authService: authService, cookieCfg: cookieCfg, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, err, "phone, id_number and password are required")
		return
	}
	tokens, err := h.authService.Register(c.Request.Context(), req, c.GetHeader("User-Agent"), auth.ClientIP(c.Request))
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondWithTokens(c, http.StatusCreated, tokens)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, err, "phone and password are required")
		return
	}
	tokens, err := h.authService.Login(c.Request.Context(), req.Phone, req.Password, c.GetHeader("User-Agent"), auth.ClientIP(c.Request))
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondWithTokens(c, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token := refreshTokenFrom(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_refresh_token", "message": "refresh token required"})
		return
	}
	tokens, err := h.authService.Refresh(c.Request.Context(), token, c.GetHeader("User-Agent"), auth.ClientIP(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh_failed", "message": "refresh token rejected"})
		return
	}
	h.respondWithTokens(c, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token := refreshTokenFrom(c); token != "" {
		_ = h.authService.Logout(c.Request.Context(), token)
	}
	auth.ClearAuthCookies(c.Writer, h.cookieCfg)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AuthHandler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(user)})
}

func (h *AuthHandler) respondWithTokens(c *gin.Context, status int, tokens *auth.AuthTokens) {
	auth.SetAuthCookies(c.Writer, h.cookieCfg, tokens.AccessToken, tokens.RefreshToken, h.accessTTL, h.refreshTTL)
	c.JSON(status, gin.H{
		"user":          userJSON(tokens.User),
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.accessTTL.Seconds()),
	})
}

// refreshTokenFrom prefers an explicit body token over the cookie so native
// clients without a cookie jar can refresh.
func refreshTokenFrom(c *gin.Context) string {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if t := strings.TrimSpace(req.RefreshToken); t != "" {
		return t
	}
	if cookie, err := c.Request.Cookie(auth.RefreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func userJSON(u *db.User) gin.H {
	if u == nil {
		return gin.H{}
	}
	return gin.H{
		"id":         u.ID,
		"phone":      u.Phone,
		"id_number":  u.IDNumber,
		"loan_limit": u.LoanLimit,
		"created_at": u.CreatedAt,
	}
}
