package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/localstore"
)

var errMissingLocalStore = errors.New("session: local store is required")

// Profile describes the logged-in warehouse account.
type Profile struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
}

// ManagerConfig describes the session manager's dependencies.
type ManagerConfig struct {
	Local  *localstore.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Manager holds the bearer token and account profile for the active session,
// persists them so the agent survives restarts, and serves as the token
// source for the remote API client.
type Manager struct {
	local  *localstore.Store
	clock  func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	token   string
	profile Profile
}

// NewManager constructs a session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Local == nil {
		return nil, errMissingLocalStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{local: cfg.Local, clock: clock, logger: logger}, nil
}

// Restore loads a previously persisted session, if any.
func (m *Manager) Restore(ctx context.Context) error {
	record, err := m.local.Session(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	m.mu.Lock()
	m.token = record.Token
	m.profile = Profile{
		UserID:      record.UserID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		Role:        record.Role,
	}
	m.mu.Unlock()

	m.logger.Info("session restored", zap.String("email", record.Email))
	return nil
}

// Establish records a fresh login and persists it.
func (m *Manager) Establish(ctx context.Context, result api.LoginResult) error {
	profile := Profile{
		UserID:      strconv.FormatInt(result.User.ID, 10),
		Email:       result.User.Email,
		DisplayName: result.User.Name,
		Role:        result.User.Role,
	}

	if err := m.local.SaveSession(ctx, localstore.SessionRecord{
		Token:       result.Token,
		UserID:      profile.UserID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Role:        profile.Role,
	}); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = result.Token
	m.profile = profile
	m.mu.Unlock()
	return nil
}

// Clear logs out: the in-memory session and the entire local cache are
// wiped, including any queued mutations. Irreversible.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.local.ClearAll(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = ""
	m.profile = Profile{}
	m.mu.Unlock()
	return nil
}

// Token implements api.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Profile returns the active account profile.
func (m *Manager) Profile() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// Authenticated reports whether a session token is present.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Expired reports whether the stored token has passed its expiry claim. The
// claim is read without signature verification: verification is the server's
// job, this only decides when to prompt for re-login. Tokens without an
// expiry claim never expire locally; unparseable tokens count as expired.
func (m *Manager) Expired() bool {
	token := m.Token()
	if token == "" {
		return true
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		m.logger.Warn("stored token is not a parseable JWT", zap.Error(err))
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(m.clock().UTC())
}
