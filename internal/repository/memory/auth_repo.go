package memory

import (
	"context"
	"time"

	"github.com/microloan/backend/internal/db"
)

type AuthRepository struct {
	s *Store
}

func (r *AuthRepository) CreateUser(_ context.Context, in db.CreateUserInput) (*db.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.byPhone[in.Phone]; ok {
		return nil, db.ErrPhoneTaken
	}
	if in.IDNumber != "" {
		if _, ok := r.s.byIDNumber[in.IDNumber]; ok {
			return nil, db.ErrIDNumberTaken
		}
	}

	now := r.s.now()
	u := &db.User{
		ID:           newID(),
		Phone:        in.Phone,
		IDNumber:     in.IDNumber,
		PasswordHash: in.PasswordHash,
		LoanLimit:    in.LoanLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[u.ID] = u
	r.s.byPhone[u.Phone] = u.ID
	if u.IDNumber != "" {
		r.s.byIDNumber[u.IDNumber] = u.ID
	}
	cp := *u
	return &cp, nil
}

func (r *AuthRepository) GetUserByID(_ context.Context, userID string) (*db.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *AuthRepository) GetUserByPhone(ctx context.Context, phone string) (*db.User, error) {
	r.s.mu.Lock()
	id, ok := r.s.byPhone[phone]
	r.s.mu.Unlock()
	if !ok {
		return nil, db.ErrUserNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *AuthRepository) GetPhone(ctx context.Context, userID string) (string, error) {
	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Phone, nil
}

func (r *AuthRepository) CreateSession(_ context.Context, userID, refreshHash, userAgent, ipAddress string, expiresAt time.Time) (*db.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return nil, db.ErrUserNotFound
	}
	now := r.s.now()
	sess := &db.Session{
		ID:               newID(),
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.s.sessions[sess.ID] = sess
	cp := *sess
	return &cp, nil
}

func (r *AuthRepository) GetSessionByID(_ context.Context, sessionID string) (*db.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[sessionID]
	if !ok {
		return nil, db.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r *AuthRepository) RevokeSession(_ context.Context, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok && sess.RevokedAt == nil {
		now := r.s.now()
		sess.RevokedAt = &now
		sess.UpdatedAt = now
	}
	return nil
}

func (r *AuthRepository) UpdateSessionRefreshHash(_ context.Context, sessionID, refreshHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok {
		sess.RefreshTokenHash = refreshHash
		sess.UpdatedAt = r.s.now()
	}
	return nil
}
