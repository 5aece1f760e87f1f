package connectivity

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor is the single source of truth for network reachability as seen from
// the device. It does not probe the remote API: the platform signal (or the
// UI's own reachability report) feeds SetOnline, and a false-positive online
// state is left to the sync engine's failure path.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	nextID      int64
	subscribers map[int64]func(bool)
	logger      *zap.Logger
}

// MonitorConfig describes the monitor's construction parameters.
type MonitorConfig struct {
	// InitiallyOnline seeds the state before the first platform signal.
	InitiallyOnline bool
	Logger          *zap.Logger
}

// NewMonitor constructs a connectivity monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		online:      cfg.InitiallyOnline,
		subscribers: make(map[int64]func(bool)),
		logger:      logger,
	}
}

// IsOnline reports the current reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback invoked on every state transition and
// returns its unsubscribe function. Callbacks run synchronously inside
// SetOnline, before control returns to the event source, so a dependent sync
// trigger cannot be missed.
func (m *Monitor) Subscribe(callback func(online bool)) func() {
	if callback == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subscribers[id] = callback
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// SetOnline records a reachability transition. Repeating the current state is
// a no-op; subscribers are only notified on an actual change.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	callbacks := make([]func(bool), 0, len(m.subscribers))
	for _, callback := range m.subscribers {
		callbacks = append(callbacks, callback)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity transition", zap.Bool("online", online))
	for _, callback := range callbacks {
		callback(online)
	}
}
