package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microloan/backend/internal/db"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrInvalidInput       = errors.New("invalid_auth_input")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrSessionRevoked     = errors.New("session_revoked")
)

type Repository interface {
	CreateUser(ctx context.Context, in db.CreateUserInput) (*db.User, error)
	GetUserByID(ctx context.Context, userID string) (*db.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*db.User, error)
	CreateSession(ctx context.Context, userID, refreshHash, userAgent, ipAddress string, expiresAt time.Time) (*db.Session, error)
	GetSessionByID(ctx context.Context, sessionID string) (*db.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
	UpdateSessionRefreshHash(ctx context.Context, sessionID, refreshHash string) error
}

type Service struct {
	repo         Repository
	jwt          *JWTManager
	accessTTL    time.Duration
	refreshTTL   time.Duration
	defaultLimit int64
}

type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	User         *db.User
}

type RegisterInput struct {
	Phone    string `json:"phone"`
	IDNumber string `json:"id_number"`
	Password string `json:"password"`
}

func NewService(repo Repository, jwt *JWTManager, accessTTL, refreshTTL time.Duration, defaultLimit int64) *Service {
	return &Service{repo: repo, jwt: jwt, accessTTL: accessTTL, refreshTTL: refreshTTL, defaultLimit: defaultLimit}
}

func (s *Service) Register(ctx context.Context, in RegisterInput, userAgent, ipAddress string) (*AuthTokens, error) {
	phone := NormalizePhone(in.Phone)
	if phone == "" || len(in.Password) < minPasswordLength {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, db.CreateUserInput{
		Phone:        phone,
		IDNumber:     strings.TrimSpace(in.IDNumber),
		PasswordHash: string(hash),
		LoanLimit:    s.defaultLimit,
	})
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user, userAgent, ipAddress)
}

func (s *Service) Login(ctx context.Context, phone, password, userAgent, ipAddress string) (*AuthTokens, error) {
	user, err := s.repo.GetUserByPhone(ctx, NormalizePhone(phone))
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, user, userAgent, ipAddress)
}

func (s *Service) Refresh(ctx context.Context, refreshToken, userAgent, ipAddress string) (*AuthTokens, error) {
	claims, err := s.jwt.ParseAs(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.repo.GetSessionByID(ctx, claims.SessionID)
	if errors.Is(err, db.ErrSessionNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, ErrSessionRevoked
	}
	if session.RefreshTokenHash != hashToken(refreshToken) {
		return nil, ErrInvalidToken
	}

	if err := s.repo.RevokeSession(ctx, session.ID); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, userAgent, ipAddress)
}

// Logout is best effort: an unparseable token has nothing to revoke.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwt.ParseAs(refreshToken, TokenTypeRefresh)
	if err != nil || claims.SessionID == "" {
		return nil
	}
	return s.repo.RevokeSession(ctx, claims.SessionID)
}

func (s *Service) Me(ctx context.Context, userID string) (*db.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *Service) issue(ctx context.Context, user *db.User, userAgent, ipAddress string) (*AuthTokens, error) {
	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	session, err := s.repo.CreateSession(ctx, user.ID, hashToken(uuid.NewString()), userAgent, ipAddress, expiresAt)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwt.Mint(user.ID, session.ID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwt.Mint(user.ID, session.ID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSessionRefreshHash(ctx, session.ID, hashToken(refreshToken)); err != nil {
		return nil, err
	}

	return &AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken, SessionID: session.ID, User: user}, nil
}

// NormalizePhone strips separators. It returns "" for anything that is not a
// plausible MSISDN.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return ""
		}
	}
	out := b.String()
	digits := strings.TrimPrefix(out, "+")
	if len(digits) < 9 || len(digits) > 15 {
		return ""
	}
	return out
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func ClientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
