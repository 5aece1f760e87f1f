package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// StoreConfig describes the dependencies for the durable store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store is the durable on-device store for cached entities and the mutation
// queue. The entity cache is written by the domain stores; the queue is
// written by the sync engine. Reads never fail on a missing key.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs a Store over an opened database handle.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("localstore: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// PutOrder upserts a single cached order, overwriting any existing row.
func (s *Store) PutOrder(ctx context.Context, order CachedOrder) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&order).Error
}

// PutOrders upserts the provided orders in one batch.
func (s *Store) PutOrders(ctx context.Context, orders []CachedOrder) error {
	if len(orders) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&orders).Error
}

// ReplaceOrders swaps the entire cached order set with the server's current
// list. Orders the server no longer returns are deleted, along with their
// cached items, so they cannot resurface in offline reads.
func (s *Store) ReplaceOrders(ctx context.Context, orders []CachedOrder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CachedOrder{}).Error; err != nil {
			return err
		}
		if len(orders) == 0 {
			return tx.Where("1 = 1").Delete(&CachedOrderItem{}).Error
		}
		ids := make([]int64, 0, len(orders))
		for _, order := range orders {
			ids = append(ids, order.ID)
		}
		if err := tx.Where("order_id NOT IN ?", ids).Delete(&CachedOrderItem{}).Error; err != nil {
			return err
		}
		return tx.Create(&orders).Error
	})
}

// Order returns the cached order for the identifier, or nil when absent.
func (s *Store) Order(ctx context.Context, orderID int64) (*CachedOrder, error) {
	var order CachedOrder
	err := s.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Orders returns every cached order, most recent order date first.
func (s *Store) Orders(ctx context.Context) ([]CachedOrder, error) {
	var orders []CachedOrder
	if err := s.db.WithContext(ctx).Order("order_date_s DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// OrdersByStatus returns cached orders matching the given status.
func (s *Store) OrdersByStatus(ctx context.Context, status string) ([]CachedOrder, error) {
	var orders []CachedOrder
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("order_date_s DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderFields applies a partial update to one cached order row.
func (s *Store) UpdateOrderFields(ctx context.Context, orderID int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&CachedOrder{}).Where("id = ?", orderID).Updates(fields).Error
}

// ReplaceOrderItems swaps the cached item set for an order. The stale set is
// deleted before the refreshed set is inserted so items removed on the server
// cannot survive a refresh.
func (s *Store) ReplaceOrderItems(ctx context.Context, orderID int64, items []CachedOrderItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&CachedOrderItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// ItemsForOrder returns the cached items belonging to an order.
func (s *Store) ItemsForOrder(ctx context.Context, orderID int64) ([]CachedOrderItem, error) {
	var items []CachedOrderItem
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItemFields applies a partial update to one cached item row.
func (s *Store) UpdateItemFields(ctx context.Context, itemID int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&CachedOrderItem{}).Where("id = ?", itemID).Updates(fields).Error
}

// PutProducts upserts the provided catalog entries in one batch.
func (s *Store) PutProducts(ctx context.Context, products []CachedProduct) error {
	if len(products) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&products).Error
}

// ProductBySKU returns the cached product with the given SKU, or nil.
func (s *Store) ProductBySKU(ctx context.Context, sku string) (*CachedProduct, error) {
	var product CachedProduct
	err := s.db.WithContext(ctx).Where("sku = ?", sku).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// PutMapping upserts a code-to-SKU mapping keyed by the scanned code.
func (s *Store) PutMapping(ctx context.Context, mapping CodeMapping) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "qr_code"}},
		UpdateAll: true,
	}).Create(&mapping).Error
}

// MappingByCode returns the mapping for a scanned code, or nil when unknown.
func (s *Store) MappingByCode(ctx context.Context, qrCode string) (*CodeMapping, error) {
	var mapping CodeMapping
	err := s.db.WithContext(ctx).Where("qr_code = ?", qrCode).Take(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// SaveSession persists the singleton session row.
func (s *Store) SaveSession(ctx context.Context, record SessionRecord) error {
	record.ID = 1
	record.SavedAtSeconds = s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

// Session returns the persisted session, or nil when no login is stored.
func (s *Store) Session(ctx context.Context) (*SessionRecord, error) {
	var record SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", 1).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteSession removes the persisted session row.
func (s *Store) DeleteSession(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("id = ?", 1).Delete(&SessionRecord{}).Error
}

// ClearAll wipes every collection, including the mutation queue and the
// persisted session. Used on logout; irreversible.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&CachedOrder{},
			&CachedOrderItem{},
			&CachedProduct{},
			&CodeMapping{},
			&QueuedMutation{},
			&SessionRecord{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
