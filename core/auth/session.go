package auth

import (
	"context"
	"errors"
	"time"

	"tenantdesk/config"
	"tenantdesk/core/store"
	"tenantdesk/core/utils"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Actor     `json:"user"`
}

type SessionManager struct {
	users  store.UsersStore
	tokens *TokenIssuer
	logger *utils.Logger
}

func NewSessionManager(users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) (*SessionManager, error) {
	tokens, err := NewTokenIssuer(cfg.Auth.TokenSecret, cfg.EffectiveTokenTTL())
	if err != nil {
		return nil, err
	}
	return &SessionManager{users: users, tokens: tokens, logger: logger}, nil
}

// Login checks the password and issues a bearer token. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		m.logger.Warnf("login failed for %q", email)
		return nil, ErrInvalidCredentials
	}
	token, exp, err := m.tokens.Issue(user.ID, utils.NowUTC())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: ActorFromUser(user)}, nil
}

// Resolve turns a bearer token into the actor it was issued for. The user row is read on
// every call so a removed account stops working at once.
func (m *SessionManager) Resolve(ctx context.Context, token string) (Actor, error) {
	claims, err := m.tokens.Verify(token, utils.NowUTC())
	if err != nil {
		return Actor{}, err
	}
	user, err := m.users.Get(ctx, claims.UserID)
	if err != nil {
		return Actor{}, err
	}
	if user == nil {
		return Actor{}, ErrInvalidToken
	}
	return ActorFromUser(user), nil
}

func ActorFromUser(u *store.User) Actor {
	a := Actor{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
	if u.TenantID != nil {
		a.TenantID = *u.TenantID
	}
	return a
}
