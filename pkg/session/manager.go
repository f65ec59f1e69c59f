package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "sessionid"

var ErrInvalidToken = errors.New("invalid session token")

type claims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager ties the session cookie to the store. The cookie carries only a
// signed session id; the data stays server side.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, secret string, ttl time.Duration) *Manager {
	return &Manager{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *Manager) Store() Store { return m.store }

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) Sign(sid string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

func (m *Manager) Parse(token string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if c.SID == "" {
		return "", ErrInvalidToken
	}
	return c.SID, nil
}

// Load resolves the cookie value into a session. A missing, forged or
// expired token, or a session the store no longer knows, yields a fresh
// anonymous session. Store failures also yield one, together with the
// error so the caller can log it.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return newSession(), nil
	}
	sid, err := m.Parse(token)
	if err != nil {
		return newSession(), nil
	}
	data, err := m.store.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return newSession(), nil
	}
	if err != nil {
		return newSession(), fmt.Errorf("load session: %w", err)
	}
	return &Session{ID: sid, Data: data}, nil
}

// Save writes a changed session and returns the cookie value for it. An
// unchanged session returns "".
func (m *Manager) Save(ctx context.Context, s *Session) (string, error) {
	if !s.dirty {
		return "", nil
	}
	if s.previous != "" {
		if err := m.store.Delete(ctx, s.previous); err != nil {
			return "", fmt.Errorf("drop rotated session: %w", err)
		}
		s.previous = ""
	}
	if err := m.store.Save(ctx, s.ID, s.Data); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	s.dirty = false
	return m.Sign(s.ID)
}
