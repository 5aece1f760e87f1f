package localstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrMutationNotFound indicates a completion mark referenced an unknown row.
var ErrMutationNotFound = errors.New("localstore: queued mutation not found")

// Enqueue appends a mutation to the queue and returns its local identifier.
// Identifiers are assigned monotonically by the storage engine, so pending
// order is enqueue order.
func (s *Store) Enqueue(ctx context.Context, kind string, payloadJSON string) (int64, error) {
	if kind == "" {
		return 0, fmt.Errorf("localstore: mutation kind is required")
	}
	mutation := QueuedMutation{
		Kind:              kind,
		PayloadJSON:       payloadJSON,
		EnqueuedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&mutation).Error; err != nil {
		return 0, err
	}
	return mutation.ID, nil
}

// Pending returns all incomplete mutations in enqueue order.
func (s *Store) Pending(ctx context.Context) ([]QueuedMutation, error) {
	var mutations []QueuedMutation
	if err := s.db.WithContext(ctx).
		Where("completed = ?", false).
		Order("id ASC").
		Find(&mutations).Error; err != nil {
		return nil, err
	}
	return mutations, nil
}

// PendingCount returns the current queue depth.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&QueuedMutation{}).
		Where("completed = ?", false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkCompleted flips a mutation's completion flag after confirmed remote
// delivery. Completed rows stay in place as a delivery log.
func (s *Store) MarkCompleted(ctx context.Context, mutationID int64) error {
	result := s.db.WithContext(ctx).
		Model(&QueuedMutation{}).
		Where("id = ?", mutationID).
		Updates(map[string]interface{}{
			"completed":      true,
			"completed_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrMutationNotFound, mutationID)
	}
	return nil
}

// CompletedSince returns completed mutations marked at or after the given
// unix second, oldest first. Used to inspect the delivery log.
func (s *Store) CompletedSince(ctx context.Context, unixSeconds int64) ([]QueuedMutation, error) {
	var mutations []QueuedMutation
	err := s.db.WithContext(ctx).
		Where("completed = ? AND completed_at_s >= ?", true, unixSeconds).
		Order("id ASC").
		Find(&mutations).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return mutations, nil
}
