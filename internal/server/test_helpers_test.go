package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/localstore"
	"github.com/rayonware/picksync/internal/orders"
	"github.com/rayonware/picksync/internal/session"
	"github.com/rayonware/picksync/internal/syncengine"
)

// fakeFulfillment is a minimal remote API double for router tests.
type fakeFulfillment struct {
	mu          sync.Mutex
	loginStatus int
	orders      []api.Order
}

func (f *fakeFulfillment) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.loginStatus
		f.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(api.LoginResult{
			Token: "remote-token",
			User:  api.User{ID: 3, Email: "picker@warehouse.example", Name: "Sam", Role: "preparateur"},
		})
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		list := f.orders
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"orders": list})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

type routerFixture struct {
	handler http.Handler
	local   *localstore.Store
	monitor *connectivity.Monitor
	remote  *fakeFulfillment
}

func newRouterFixture(t *testing.T, online bool) *routerFixture {
	t.Helper()
	remote := &fakeFulfillment{}
	remoteServer := httptest.NewServer(remote.handler())
	t.Cleanup(remoteServer.Close)

	databasePath := filepath.Join(t.TempDir(), "agent.db")
	db, err := localstore.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	local, err := localstore.NewStore(localstore.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	sessions, err := session.NewManager(session.ManagerConfig{Local: local})
	if err != nil {
		t.Fatalf("failed to construct sessions: %v", err)
	}
	client, err := api.NewClient(api.ClientConfig{BaseURL: remoteServer.URL, Tokens: sessions})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{InitiallyOnline: online})
	engine, err := syncengine.NewEngine(syncengine.Config{Queue: local, Client: client, Monitor: monitor})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	orderStore, err := orders.NewService(orders.ServiceConfig{
		Client:  client,
		Local:   local,
		Engine:  engine,
		Monitor: monitor,
		Clock:   func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct order store: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Sessions: sessions,
		Client:   client,
		Orders:   orderStore,
		Engine:   engine,
		Monitor:  monitor,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &routerFixture{handler: handler, local: local, monitor: monitor, remote: remote}
}

func (fx *routerFixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	fx.handler.ServeHTTP(recorder, request)
	return recorder
}

func (fx *routerFixture) login(t *testing.T) {
	t.Helper()
	response := fx.request(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "picker@warehouse.example",
		"password": "secret",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", response.Code, response.Body.String())
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
