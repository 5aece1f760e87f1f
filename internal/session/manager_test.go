package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/localstore"
)

func newTestManager(t *testing.T, clock func() time.Time) (*Manager, *localstore.Store) {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "session.db")
	db, err := localstore.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := localstore.NewStore(localstore.StoreConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	manager, err := NewManager(ManagerConfig{Local: store, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	return manager, store
}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestEstablishPersistsAcrossRestart(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	manager, store := newTestManager(t, clock)
	ctx := context.Background()

	result := api.LoginResult{
		Token: signedToken(t, time.Unix(1700003600, 0)),
		User:  api.User{ID: 9, Email: "picker@warehouse.example", Name: "Pat", Role: "preparateur"},
	}
	if err := manager.Establish(ctx, result); err != nil {
		t.Fatalf("unexpected establish error: %v", err)
	}
	if !manager.Authenticated() {
		t.Fatalf("expected authenticated session")
	}

	restarted, err := NewManager(ManagerConfig{Local: store, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	if err := restarted.Restore(ctx); err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if restarted.Token() != result.Token {
		t.Fatalf("expected token to survive restart")
	}
	profile := restarted.Profile()
	if profile.UserID != "9" || profile.Email != "picker@warehouse.example" || profile.Role != "preparateur" {
		t.Fatalf("unexpected restored profile %#v", profile)
	}
}

func TestExpiredUsesTokenClaim(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	manager, _ := newTestManager(t, func() time.Time { return now })
	ctx := context.Background()

	fresh := api.LoginResult{Token: signedToken(t, now.Add(time.Hour)), User: api.User{ID: 1}}
	if err := manager.Establish(ctx, fresh); err != nil {
		t.Fatalf("unexpected establish error: %v", err)
	}
	if manager.Expired() {
		t.Fatalf("token expiring in an hour should not be expired")
	}

	stale := api.LoginResult{Token: signedToken(t, now.Add(-time.Minute)), User: api.User{ID: 1}}
	if err := manager.Establish(ctx, stale); err != nil {
		t.Fatalf("unexpected establish error: %v", err)
	}
	if !manager.Expired() {
		t.Fatalf("token past its expiry claim should be expired")
	}
}

func TestExpiredWithoutSession(t *testing.T) {
	manager, _ := newTestManager(t, time.Now)
	if !manager.Expired() {
		t.Fatalf("empty session should count as expired")
	}
}

func TestClearWipesSessionAndCache(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	manager, store := newTestManager(t, clock)
	ctx := context.Background()

	if err := manager.Establish(ctx, api.LoginResult{Token: signedToken(t, time.Unix(1700003600, 0)), User: api.User{ID: 2}}); err != nil {
		t.Fatalf("unexpected establish error: %v", err)
	}
	if err := store.PutOrder(ctx, localstore.CachedOrder{ID: 1, Status: "pending"}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if _, err := store.Enqueue(ctx, "start_order", "{}"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	if err := manager.Clear(ctx); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}

	if manager.Authenticated() {
		t.Fatalf("expected session to be cleared")
	}
	orders, err := store.Orders(ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected cache to be cleared")
	}
	record, err := store.Session(ctx)
	if err != nil {
		t.Fatalf("unexpected session read error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected persisted session to be removed")
	}
}
