package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agente-digital/config"
	"agente-digital/core/store"
	"agente-digital/core/utils"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, salt, err := HashPassword("contrasena-larga-123", "pepper")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "" || salt == "" {
		t.Fatal("empty hash or salt")
	}
	if !VerifyPassword("contrasena-larga-123", "pepper", hash, salt) {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("otra-cosa", "pepper", hash, salt) {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("contrasena-larga-123", "otro-pepper", hash, salt) {
		t.Fatal("wrong pepper accepted")
	}

	again, salt2, _ := HashPassword("contrasena-larga-123", "pepper")
	if again == hash && salt2 == salt {
		t.Fatal("salt not random")
	}
}

func TestIssueAndParseToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secreto-de-prueba", JWTIssuer: "agente-digital", TokenTTL: time.Hour}
	now := time.Now()

	token, err := IssueToken(cfg, 7, "ana", []string{"auditor"}, 3, "sess-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Username != "ana" || claims.TenantID != 3 || claims.SessionID != "sess-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Subject != "7" {
		t.Fatalf("subject = %q", claims.Subject)
	}

	other := config.AuthConfig{JWTSecret: "otro-secreto", JWTIssuer: "agente-digital"}
	if _, err := ParseToken(other, token); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
	if _, err := ParseToken(cfg, "basura"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}
}

func setupAuth(t *testing.T) (*Service, store.UsersStore, *config.AppConfig) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(t.TempDir(), "auth.db"),
		SessionTTL: time.Hour,
		Auth: config.AuthConfig{
			JWTSecret:   "secreto",
			JWTIssuer:   "agente-digital",
			Pepper:      "pepper",
			MaxFailures: 3,
			LockoutMins: 15,
		},
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, cfg, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	users := store.NewUsersStore(db)
	svc := NewService(cfg, users, store.NewSessionsStore(db), store.NewAuditStore(db), logger)
	return svc, users, cfg
}

func createUser(t *testing.T, users store.UsersStore, username, password string) int64 {
	t.Helper()
	hash, salt, err := HashPassword(password, "pepper")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id, err := users.Create(context.Background(), &store.User{
		Username: username, Email: username + "@empresa.cl",
		PasswordHash: hash, Salt: salt,
		Roles: []string{"gestor_incidentes"}, Active: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, users, _ := setupAuth(t)
	ctx := context.Background()
	createUser(t, users, "ana", "clave-muy-segura-1")

	res, err := svc.Login(ctx, "ana", "clave-muy-segura-1", "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.Username != "ana" {
		t.Fatalf("result = %+v", res)
	}

	claims, err := svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.Username != "ana" {
		t.Fatalf("claims = %+v", claims)
	}

	// Logout revokes the backing session; the unexpired token dies with it.
	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, res.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token still valid: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc, users, _ := setupAuth(t)
	ctx := context.Background()
	uid := createUser(t, users, "ana", "clave-muy-segura-1")

	if _, err := svc.Login(ctx, "nadie", "x", "", ""); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown user: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Login(ctx, "ana", "incorrecta", "", ""); !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// Third failure locks the account; the right password no longer works.
	if _, err := svc.Login(ctx, "ana", "clave-muy-segura-1", "", ""); !errors.Is(err, ErrUserLocked) {
		t.Fatalf("expected ErrUserLocked, got %v", err)
	}

	if err := users.Deactivate(ctx, uid); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Login(ctx, "ana", "clave-muy-segura-1", "", ""); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}
