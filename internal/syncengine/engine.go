package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/localstore"
)

const defaultInterval = 120 * time.Second

var (
	errMissingQueue    = errors.New("mutation queue is required")
	errMissingClient   = errors.New("remote client is required")
	errMissingMonitor  = errors.New("connectivity monitor is required")
	errAlreadyStarted  = errors.New("engine already started")
	errUnknownKind     = errors.New("unknown mutation kind")
	errMalformedRecord = errors.New("malformed mutation payload")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps engine failures with a stable operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opEngineNew = "syncengine.new"
	opSubmit    = "syncengine.submit"
	opDrain     = "syncengine.drain"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RemoteClient is the slice of the remote API the engine dispatches to.
// Every method must be an idempotent set on the remote side: a drain pass can
// be interrupted between remote success and local completion-marking, so the
// same mutation may be delivered twice.
type RemoteClient interface {
	StartOrder(ctx context.Context, orderID int64) error
	MarkItemPicked(ctx context.Context, orderID, itemID int64, quantity int) error
	MarkItemMissing(ctx context.Context, orderID, itemID int64, quantity int) error
	CompleteOrder(ctx context.Context, orderID int64) error
	CreateCodeMapping(ctx context.Context, qrCode, sku string) error
}

// Config describes the engine's dependencies.
type Config struct {
	Queue    *localstore.Store
	Client   RemoteClient
	Monitor  *connectivity.Monitor
	Clock    func() time.Time
	Logger   *zap.Logger
	Interval time.Duration
}

// DrainOutcome summarizes one drain pass for callers that invoke it directly;
// the same information reaches UI subscribers through StatusEvents.
type DrainOutcome struct {
	// Skipped is true when another pass was already in flight and this
	// trigger was a no-op.
	Skipped   bool
	Attempted int
	Succeeded int
	Failed    int
	// AuthAborted is true when the pass stopped early on an authentication
	// rejection, leaving the remaining mutations untouched.
	AuthAborted bool
}

// Engine owns the mutation queue: it guarantees every enqueued mutation is
// eventually delivered at least once, in enqueue order, and drains the queue
// on connectivity-regained events, on a fixed interval, and after each
// enqueue while online.
type Engine struct {
	queue    *localstore.Store
	client   RemoteClient
	monitor  *connectivity.Monitor
	clock    func() time.Time
	logger   *zap.Logger
	interval time.Duration
	status   *StatusDispatcher

	draining     atomic.Bool
	failureCount atomic.Int64

	lastMu    sync.RWMutex
	lastEvent *StatusEvent

	lifecycleMu sync.Mutex
	runCtx      context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// NewEngine constructs a sync engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Queue == nil {
		return nil, newServiceError(opEngineNew, "missing_queue", errMissingQueue)
	}
	if cfg.Client == nil {
		return nil, newServiceError(opEngineNew, "missing_client", errMissingClient)
	}
	if cfg.Monitor == nil {
		return nil, newServiceError(opEngineNew, "missing_monitor", errMissingMonitor)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Engine{
		queue:    cfg.Queue,
		client:   cfg.Client,
		monitor:  cfg.Monitor,
		clock:    clock,
		logger:   logger,
		interval: interval,
		status:   NewStatusDispatcher(),
	}, nil
}

// Start wires the connectivity trigger and the interval ticker. It returns
// immediately; draining happens on the engine's own goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	if e.cancel != nil {
		return newServiceError(opEngineNew, "already_started", errAlreadyStarted)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel
	e.done = make(chan struct{})

	e.unsubscribe = e.monitor.Subscribe(func(online bool) {
		if online {
			go e.Drain(runCtx)
		}
	})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if e.monitor.IsOnline() {
					e.Drain(runCtx)
				}
			}
		}
	}()

	return nil
}

// Stop tears down the triggers and waits for the ticker goroutine to exit.
// An in-flight drain pass finishes on its own.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	if e.cancel == nil {
		return
	}
	e.unsubscribe()
	e.cancel()
	<-e.done
	e.runCtx = nil
	e.cancel = nil
	e.unsubscribe = nil
	e.done = nil
}

// Submit appends a mutation to the durable queue and returns its local
// identifier as the acceptance handle. Delivery confirmation arrives later
// through status events, never through this call. When online, a drain pass
// is kicked off asynchronously; an in-flight pass will not pick this
// mutation up, the kicked (or next) pass will.
func (e *Engine) Submit(ctx context.Context, kind Kind, payload interface{}) (int64, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, newServiceError(opSubmit, "encode_payload", err)
	}
	id, err := e.queue.Enqueue(ctx, string(kind), string(encoded))
	if err != nil {
		e.logger.Error("mutation enqueue failed", zap.String("kind", string(kind)), zap.Error(err))
		return 0, newServiceError(opSubmit, "enqueue_failed", err)
	}

	e.lifecycleMu.Lock()
	runCtx := e.runCtx
	e.lifecycleMu.Unlock()
	if runCtx != nil && e.monitor.IsOnline() {
		go e.Drain(runCtx)
	}
	return id, nil
}

// Subscribe registers a status event listener.
func (e *Engine) Subscribe(ctx context.Context) (<-chan StatusEvent, func()) {
	return e.status.Subscribe(ctx)
}

// LastEvent returns the most recently published status event, if any.
func (e *Engine) LastEvent() *StatusEvent {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.lastEvent == nil {
		return nil
	}
	event := *e.lastEvent
	return &event
}

// FailureCount returns the cumulative transient delivery failure count.
func (e *Engine) FailureCount() int64 {
	return e.failureCount.Load()
}

// PendingCount returns the current queue depth.
func (e *Engine) PendingCount(ctx context.Context) (int64, error) {
	return e.queue.PendingCount(ctx)
}

// Drain runs one complete drain pass: all incomplete mutations are attempted
// in enqueue order. Only one pass runs at a time; a concurrent trigger
// returns immediately with Skipped set. Per mutation: success marks it
// complete, an authentication rejection aborts the rest of the pass, any
// other failure leaves it queued and continues with the next one.
func (e *Engine) Drain(ctx context.Context) DrainOutcome {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainOutcome{Skipped: true}
	}
	defer e.draining.Store(false)

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		e.logger.Error("drain pass could not read queue", zap.Error(err))
		e.publish(StatusEvent{State: StateError, At: e.clock().UTC()})
		return DrainOutcome{}
	}
	if len(pending) == 0 {
		return DrainOutcome{}
	}

	e.publish(StatusEvent{State: StateSyncing, Pending: len(pending), At: e.clock().UTC()})

	outcome := DrainOutcome{Attempted: len(pending)}
	for index, mutation := range pending {
		if ctx.Err() != nil {
			// Shutdown mid-pass: everything not yet marked stays queued and
			// is picked up after restart.
			outcome.Attempted = index
			break
		}

		err := e.dispatch(ctx, mutation)
		switch {
		case err == nil:
			if markErr := e.queue.MarkCompleted(ctx, mutation.ID); markErr != nil {
				// Remote effect applied but the local mark failed; the row
				// will be re-sent, which is why remote effects must be
				// idempotent sets.
				e.logger.Error("completion mark failed",
					zap.Int64("mutation_id", mutation.ID),
					zap.String("kind", mutation.Kind),
					zap.Error(markErr))
				outcome.Failed++
			} else {
				outcome.Succeeded++
			}
		case errors.Is(err, errUnknownKind), errors.Is(err, errMalformedRecord):
			e.logger.Warn("skipping undeliverable mutation",
				zap.Int64("mutation_id", mutation.ID),
				zap.String("kind", mutation.Kind),
				zap.Error(err))
			if markErr := e.queue.MarkCompleted(ctx, mutation.ID); markErr != nil {
				e.logger.Error("completion mark failed",
					zap.Int64("mutation_id", mutation.ID),
					zap.Error(markErr))
			}
		case api.IsAuthFailure(err):
			e.logger.Warn("drain pass aborted, session rejected",
				zap.Int64("mutation_id", mutation.ID),
				zap.String("kind", mutation.Kind),
				zap.Int("remaining", len(pending)-index))
			outcome.AuthAborted = true
		default:
			e.failureCount.Add(1)
			outcome.Failed++
			e.logger.Warn("mutation delivery failed, left queued",
				zap.Int64("mutation_id", mutation.ID),
				zap.String("kind", mutation.Kind),
				zap.Error(err))
		}

		if outcome.AuthAborted {
			break
		}
	}

	if outcome.AuthAborted {
		e.publish(StatusEvent{
			State:       StateError,
			Succeeded:   outcome.Succeeded,
			Failed:      outcome.Failed,
			AuthExpired: true,
			At:          e.clock().UTC(),
		})
	} else {
		e.publish(StatusEvent{
			State:     StateCompleted,
			Succeeded: outcome.Succeeded,
			Failed:    outcome.Failed,
			At:        e.clock().UTC(),
		})
	}
	return outcome
}

func (e *Engine) dispatch(ctx context.Context, mutation localstore.QueuedMutation) error {
	switch Kind(mutation.Kind) {
	case KindStartOrder:
		var payload OrderPayload
		if err := json.Unmarshal([]byte(mutation.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		return e.client.StartOrder(ctx, payload.OrderID)
	case KindMarkPicked:
		var payload ItemPayload
		if err := json.Unmarshal([]byte(mutation.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		return e.client.MarkItemPicked(ctx, payload.OrderID, payload.ItemID, payload.Quantity)
	case KindMarkMissing:
		var payload ItemPayload
		if err := json.Unmarshal([]byte(mutation.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		return e.client.MarkItemMissing(ctx, payload.OrderID, payload.ItemID, payload.Quantity)
	case KindCompleteOrder:
		var payload OrderPayload
		if err := json.Unmarshal([]byte(mutation.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		return e.client.CompleteOrder(ctx, payload.OrderID)
	case KindCreateQRMapping:
		var payload MappingPayload
		if err := json.Unmarshal([]byte(mutation.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		return e.client.CreateCodeMapping(ctx, payload.QRCode, payload.SKU)
	default:
		return fmt.Errorf("%w: %s", errUnknownKind, mutation.Kind)
	}
}

func (e *Engine) publish(event StatusEvent) {
	e.lastMu.Lock()
	stored := event
	e.lastEvent = &stored
	e.lastMu.Unlock()
	e.status.Publish(event)
}
