// Package auth covers credentials, bearer tokens and sessions: argon2id
// password hashes with a server-side pepper, HS256 tokens bound to a
// revocable session row, and failed-login lockout.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

var (
	ErrBadCredentials = errors.New("auth: credenciales invalidas")
	ErrUserLocked     = errors.New("auth: cuenta bloqueada")
	ErrUserInactive   = errors.New("auth: cuenta desactivada")
)

type Service struct {
	cfg      *config.AppConfig
	users    store.UsersStore
	sessions store.SessionStore
	audit    store.AuditStore
	logger   *utils.Logger
}

func NewService(cfg *config.AppConfig, users store.UsersStore, sessions store.SessionStore,
	audit store.AuditStore, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, users: users, sessions: sessions, audit: audit, logger: logger}
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	TenantID  int64     `json:"inquilino_id,omitempty"`
}

// Login verifies credentials, enforces the lockout counter and issues a
// token backed by a session row.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	if user == nil {
		// Burn comparable time so a missing user is not distinguishable
		// by response latency.
		VerifyPassword(password, s.cfg.Auth.Pepper, "", "")
		return nil, ErrBadCredentials
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrUserLocked
	}

	if !VerifyPassword(password, s.cfg.Auth.Pepper, user.PasswordHash, user.Salt) {
		attempts := user.FailedAttempts + 1
		var lockedUntil *time.Time
		if s.cfg.Auth.MaxFailures > 0 && attempts >= s.cfg.Auth.MaxFailures {
			t := now.Add(time.Duration(s.cfg.Auth.LockoutMins) * time.Minute)
			lockedUntil = &t
			s.logger.Warnf("cuenta %s bloqueada tras %d intentos", username, attempts)
			_ = s.audit.Append(ctx, username, "cuenta_bloqueada", ip)
		}
		if err := s.users.RecordFailedLogin(ctx, user.ID, attempts, lockedUntil); err != nil {
			s.logger.Errorf("registrando intento fallido de %s: %v", username, err)
		}
		return nil, ErrBadCredentials
	}

	if err := s.users.ResetFailedLogins(ctx, user.ID, now); err != nil {
		s.logger.Errorf("reiniciando contador de %s: %v", username, err)
	}

	sessID := uuid.Must(uuid.NewV4()).String()
	ttl := s.cfg.EffectiveSessionTTL()
	if err := s.sessions.SaveSession(ctx, &store.SessionRecord{
		ID:         sessID,
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      user.Roles,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}); err != nil {
		return nil, err
	}

	var tenantID int64
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	token, err := IssueToken(s.cfg.Auth, user.ID, user.Username, user.Roles, tenantID, sessID, now)
	if err != nil {
		return nil, err
	}
	_ = s.audit.Append(ctx, username, "login", ip)
	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(ttl),
		Username:  user.Username,
		Roles:     user.Roles,
		TenantID:  tenantID,
	}, nil
}

// Authenticate validates a bearer token and its backing session, refreshing
// the session activity window.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*Claims, error) {
	claims, err := ParseToken(s.cfg.Auth, rawToken)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrInvalidToken
	}
	if err := s.sessions.UpdateActivity(ctx, sess.ID, utils.NowUTC(), s.cfg.EffectiveSessionTTL()); err != nil {
		s.logger.Warnf("actualizando actividad de sesion %s: %v", sess.ID, err)
	}
	return claims, nil
}

// Logout revokes the session behind the token; the token stops working
// immediately even though its expiry lies ahead.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.SessionID == "" {
		return nil
	}
	_ = s.audit.Append(ctx, claims.Username, "logout", "")
	return s.sessions.DeleteSession(ctx, claims.SessionID)
}

// PurgeExpired removes dead session rows.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, utils.NowUTC())
}
