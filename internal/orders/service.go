package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rayonware/picksync/internal/api"
	"github.com/rayonware/picksync/internal/connectivity"
	"github.com/rayonware/picksync/internal/localstore"
	"github.com/rayonware/picksync/internal/syncengine"
)

var (
	errMissingClient  = errors.New("remote client is required")
	errMissingLocal   = errors.New("local store is required")
	errMissingEngine  = errors.New("sync engine is required")
	errMissingMonitor = errors.New("connectivity monitor is required")
	errOffline        = errors.New("device is offline")
	noOpLogger        = zap.NewNop()
)

// ServiceError wraps order store failures with a stable operation code.
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
	opServiceNew  = "orders.service.new"
	opRefresh     = "orders.refresh"
	opMutate      = "orders.mutate"
	opCodeMapping = "orders.code_mapping"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the order store's dependencies.
type ServiceConfig struct {
	Client  *api.Client
	Local   *localstore.Store
	Engine  *syncengine.Engine
	Monitor *connectivity.Monitor
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Service mediates all order reads and writes for the UI. Reads prefer the
// remote API and fall back to the local cache; state-changing writes never
// call the remote API directly, they enqueue mutations through the sync
// engine and update the cache optimistically.
type Service struct {
	client  *api.Client
	local   *localstore.Store
	engine  *syncengine.Engine
	monitor *connectivity.Monitor
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService constructs an order store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, newServiceError(opServiceNew, "missing_client", errMissingClient)
	}
	if cfg.Local == nil {
		return nil, newServiceError(opServiceNew, "missing_local_store", errMissingLocal)
	}
	if cfg.Engine == nil {
		return nil, newServiceError(opServiceNew, "missing_engine", errMissingEngine)
	}
	if cfg.Monitor == nil {
		return nil, newServiceError(opServiceNew, "missing_monitor", errMissingMonitor)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		client:  cfg.Client,
		local:   cfg.Local,
		engine:  cfg.Engine,
		monitor: cfg.Monitor,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Detail is an order with its full item set.
type Detail struct {
	Order localstore.CachedOrder
	Items []localstore.CachedOrderItem
}

// List returns the order list, live when reachable, cached otherwise. A read
// never surfaces a network error: any fetch failure falls back to the cache,
// and an empty cache while offline is a valid empty result.
func (s *Service) List(ctx context.Context) ([]localstore.CachedOrder, error) {
	if s.monitor.IsOnline() {
		remote, err := s.client.ListOrders(ctx)
		if err == nil {
			cached := s.toCachedOrders(remote)
			// The server list is authoritative: replacing the whole set
			// evicts orders deleted or filtered out remotely.
			if putErr := s.local.ReplaceOrders(ctx, cached); putErr != nil {
				s.logger.Error("order list cache refresh failed", zap.Error(putErr))
			}
			return cached, nil
		}
		s.logger.Warn("order list fetch failed, falling back to cache", zap.Error(err))
	}

	cached, err := s.local.Orders(ctx)
	if err != nil {
		s.logger.Error("order cache read failed, treating cache as empty", zap.Error(err))
		return []localstore.CachedOrder{}, nil
	}
	return cached, nil
}

// Get returns one order with items, live when reachable, cached otherwise.
// A nil Detail with nil error means the order is unknown on both sides.
func (s *Service) Get(ctx context.Context, orderID int64) (*Detail, error) {
	if s.monitor.IsOnline() {
		remote, err := s.client.OrderDetail(ctx, orderID)
		if err == nil {
			detail := s.cacheDetail(ctx, remote)
			return &detail, nil
		}
		s.logger.Warn("order detail fetch failed, falling back to cache",
			zap.Int64("order_id", orderID), zap.Error(err))
	}

	order, err := s.local.Order(ctx, orderID)
	if err != nil {
		s.logger.Error("order cache read failed, treating cache as empty",
			zap.Int64("order_id", orderID), zap.Error(err))
		return nil, nil
	}
	if order == nil {
		return nil, nil
	}
	items, err := s.local.ItemsForOrder(ctx, orderID)
	if err != nil {
		s.logger.Error("item cache read failed, treating cache as empty",
			zap.Int64("order_id", orderID), zap.Error(err))
		items = nil
	}
	return &Detail{Order: *order, Items: items}, nil
}

// Refresh asks the server to pull fresh orders from the commerce platform,
// re-fetches the list, and proactively persists each order's full detail so
// later offline reads return complete data. Online only.
func (s *Service) Refresh(ctx context.Context) (api.SyncStats, error) {
	if !s.monitor.IsOnline() {
		return api.SyncStats{}, newServiceError(opRefresh, "offline", errOffline)
	}

	stats, err := s.client.SyncOrders(ctx)
	if err != nil {
		return api.SyncStats{}, newServiceError(opRefresh, "platform_sync_failed", err)
	}

	remote, err := s.client.ListOrders(ctx)
	if err != nil {
		return stats, newServiceError(opRefresh, "list_fetch_failed", err)
	}
	if err := s.local.ReplaceOrders(ctx, s.toCachedOrders(remote)); err != nil {
		return stats, newServiceError(opRefresh, "cache_refresh_failed", err)
	}

	for _, order := range remote {
		detail, err := s.client.OrderDetail(ctx, order.ID)
		if err != nil {
			// One unreadable order must not stop the others from being
			// cached; it simply stays list-level until the next refresh.
			s.logger.Warn("full detail fetch failed during refresh",
				zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		s.cacheDetail(ctx, detail)
	}

	return stats, nil
}

// StartOrder queues the picking-started mutation and returns the queue id as
// the acceptance handle. Confirmation arrives via sync status events.
func (s *Service) StartOrder(ctx context.Context, orderID int64) (int64, error) {
	mutationID, err := s.engine.Submit(ctx, syncengine.KindStartOrder, syncengine.OrderPayload{OrderID: orderID})
	if err != nil {
		return 0, newServiceError(opMutate, "enqueue_failed", err)
	}
	s.applyOptimistic(ctx, orderID, map[string]interface{}{
		"status": "processing",
		"synced": false,
	})
	return mutationID, nil
}

// MarkItemPicked queues an idempotent set of the item's picked quantity.
func (s *Service) MarkItemPicked(ctx context.Context, orderID, itemID int64, quantity int) (int64, error) {
	mutationID, err := s.engine.Submit(ctx, syncengine.KindMarkPicked, syncengine.ItemPayload{
		OrderID:  orderID,
		ItemID:   itemID,
		Quantity: quantity,
	})
	if err != nil {
		return 0, newServiceError(opMutate, "enqueue_failed", err)
	}
	if updateErr := s.local.UpdateItemFields(ctx, itemID, map[string]interface{}{
		"picked_quantity": quantity,
		"is_picked":       quantity > 0,
		"synced":          false,
	}); updateErr != nil {
		s.logger.Error("optimistic item update failed",
			zap.Int64("item_id", itemID), zap.Error(updateErr))
	}
	return mutationID, nil
}

// MarkItemMissing queues an idempotent set of the item's missing quantity.
func (s *Service) MarkItemMissing(ctx context.Context, orderID, itemID int64, quantity int) (int64, error) {
	mutationID, err := s.engine.Submit(ctx, syncengine.KindMarkMissing, syncengine.ItemPayload{
		OrderID:  orderID,
		ItemID:   itemID,
		Quantity: quantity,
	})
	if err != nil {
		return 0, newServiceError(opMutate, "enqueue_failed", err)
	}
	if updateErr := s.local.UpdateItemFields(ctx, itemID, map[string]interface{}{
		"missing_quantity": quantity,
		"synced":           false,
	}); updateErr != nil {
		s.logger.Error("optimistic item update failed",
			zap.Int64("item_id", itemID), zap.Error(updateErr))
	}
	return mutationID, nil
}

// CompleteOrder queues the order completion; the server computes duration.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (int64, error) {
	mutationID, err := s.engine.Submit(ctx, syncengine.KindCompleteOrder, syncengine.OrderPayload{OrderID: orderID})
	if err != nil {
		return 0, newServiceError(opMutate, "enqueue_failed", err)
	}
	s.applyOptimistic(ctx, orderID, map[string]interface{}{
		"status":         "completed",
		"completed_at_s": s.clock().UTC().Unix(),
		"synced":         false,
	})
	return mutationID, nil
}

// CreateCodeMapping queues a scanned-code-to-SKU mapping and records it
// locally so scans resolve before delivery.
func (s *Service) CreateCodeMapping(ctx context.Context, qrCode, sku string) (int64, error) {
	mutationID, err := s.engine.Submit(ctx, syncengine.KindCreateQRMapping, syncengine.MappingPayload{
		QRCode: qrCode,
		SKU:    sku,
	})
	if err != nil {
		return 0, newServiceError(opCodeMapping, "enqueue_failed", err)
	}
	if putErr := s.local.PutMapping(ctx, localstore.CodeMapping{
		ID:               uuid.NewString(),
		QRCode:           qrCode,
		SKU:              sku,
		CreatedAtSeconds: s.clock().UTC().Unix(),
		Synced:           false,
	}); putErr != nil {
		s.logger.Error("optimistic mapping write failed",
			zap.String("qr_code", qrCode), zap.Error(putErr))
	}
	return mutationID, nil
}

// ResolveCode returns the SKU mapped to a scanned code, cached-first.
func (s *Service) ResolveCode(ctx context.Context, qrCode string) (string, bool, error) {
	mapping, err := s.local.MappingByCode(ctx, qrCode)
	if err != nil {
		return "", false, err
	}
	if mapping != nil {
		return mapping.SKU, true, nil
	}
	product, err := s.local.ProductBySKU(ctx, qrCode)
	if err != nil {
		return "", false, err
	}
	if product != nil {
		return product.SKU, true, nil
	}
	return "", false, nil
}

func (s *Service) applyOptimistic(ctx context.Context, orderID int64, fields map[string]interface{}) {
	if err := s.local.UpdateOrderFields(ctx, orderID, fields); err != nil {
		s.logger.Error("optimistic order update failed",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// cacheDetail persists a freshly fetched order and swaps its item set with
// delete-then-insert semantics so stale items cannot survive a refresh.
func (s *Service) cacheDetail(ctx context.Context, remote api.OrderDetail) Detail {
	order := s.toCachedOrder(remote.Order)
	items := make([]localstore.CachedOrderItem, 0, len(remote.Items))
	for _, item := range remote.Items {
		items = append(items, localstore.CachedOrderItem{
			ID:              item.ID,
			OrderID:         remote.ID,
			ProductID:       item.ProductID,
			SKU:             item.SKU,
			Name:            item.Name,
			Quantity:        item.Quantity,
			PickedQuantity:  item.PickedQuantity,
			MissingQuantity: item.MissingQuantity,
			IsPicked:        item.IsPicked,
			Synced:          true,
		})
	}

	if err := s.local.PutOrder(ctx, order); err != nil {
		s.logger.Error("order cache write failed", zap.Int64("order_id", remote.ID), zap.Error(err))
	}
	if err := s.local.ReplaceOrderItems(ctx, remote.ID, items); err != nil {
		s.logger.Error("item cache replace failed", zap.Int64("order_id", remote.ID), zap.Error(err))
	}
	return Detail{Order: order, Items: items}
}

func (s *Service) toCachedOrders(remote []api.Order) []localstore.CachedOrder {
	cached := make([]localstore.CachedOrder, 0, len(remote))
	for _, order := range remote {
		cached = append(cached, s.toCachedOrder(order))
	}
	return cached
}

func (s *Service) toCachedOrder(remote api.Order) localstore.CachedOrder {
	return localstore.CachedOrder{
		ID:                 remote.ID,
		PlatformID:         remote.PlatformID,
		Number:             remote.Number,
		Status:             remote.Status,
		CustomerName:       remote.CustomerName,
		OrderDateSeconds:   unixOrZero(remote.OrderDate),
		StartedBy:          remote.StartedBy,
		StartedAtSeconds:   unixOrZero(remote.StartedAt),
		CompletedAtSeconds: unixOrZero(remote.CompletedAt),
		Synced:             true,
		FetchedAtSeconds:   s.clock().UTC().Unix(),
	}
}

func unixOrZero(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().Unix()
}
