package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type Claims struct {
	UserID string `json:"sub"`
	Issued int64  `json:"iat"`
	Exp    int64  `json:"exp"`
}

// TokenIssuer signs bearer tokens as base64url(payload) "." base64url(hmac-sha256(payload)).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("empty token secret")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

func (t *TokenIssuer) Issue(userID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(t.ttl)
	raw, err := json.Marshal(Claims{UserID: userID, Issued: now.Unix(), Exp: exp.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	sig := base64.RawURLEncoding.EncodeToString(t.sign(payload))
	return payload + "." + sig, exp, nil
}

func (t *TokenIssuer) Verify(token string, now time.Time) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare(gotSig, t.sign(parts[0])) != 1 {
		return nil, ErrInvalidToken
	}
	rawPayload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(rawPayload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Exp <= 0 {
		return nil, ErrInvalidToken
	}
	if now.UTC().Unix() >= claims.Exp {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func (t *TokenIssuer) sign(payload string) []byte {
	m := hmac.New(sha256.New, t.secret)
	_, _ = m.Write([]byte(payload))
	return m.Sum(nil)
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
