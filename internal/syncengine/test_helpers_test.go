package syncengine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/localstore"
)

// fakeRemote records dispatched calls and lets tests inject per-call errors.
type fakeRemote struct {
	mu    sync.Mutex
	calls []string
	// fail returns a non-nil error for calls that should be rejected.
	fail func(call string) error
	// block, when non-nil, is closed by the test to release in-flight calls;
	// started is signalled once per call before blocking.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRemote) record(ctx context.Context, call string) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRemote) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) StartOrder(ctx context.Context, orderID int64) error {
	return f.record(ctx, fmt.Sprintf("start:%d", orderID))
}

func (f *fakeRemote) MarkItemPicked(ctx context.Context, orderID, itemID int64, quantity int) error {
	return f.record(ctx, fmt.Sprintf("picked:%d/%d=%d", orderID, itemID, quantity))
}

func (f *fakeRemote) MarkItemMissing(ctx context.Context, orderID, itemID int64, quantity int) error {
	return f.record(ctx, fmt.Sprintf("missing:%d/%d=%d", orderID, itemID, quantity))
}

func (f *fakeRemote) CompleteOrder(ctx context.Context, orderID int64) error {
	return f.record(ctx, fmt.Sprintf("complete:%d", orderID))
}

func (f *fakeRemote) CreateCodeMapping(ctx context.Context, qrCode, sku string) error {
	return f.record(ctx, fmt.Sprintf("mapping:%s=%s", qrCode, sku))
}

func newTestQueue(t *testing.T) *localstore.Store {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "queue.db")
	db, err := localstore.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := localstore.NewStore(localstore.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func newTestEngine(t *testing.T, remote RemoteClient, online bool) (*Engine, *localstore.Store, *connectivity.Monitor) {
	t.Helper()
	queue := newTestQueue(t)
	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{InitiallyOnline: online})
	engine, err := NewEngine(Config{
		Queue:   queue,
		Client:  remote,
		Monitor: monitor,
		Clock:   func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return engine, queue, monitor
}

func waitForPendingCount(t *testing.T, queue *localstore.Store, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := queue.PendingCount(context.Background())
		if err != nil {
			t.Fatalf("unexpected count error: %v", err)
		}
		if count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pending count never reached %d", want)
}
