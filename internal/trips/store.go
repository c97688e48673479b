package trips

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a trip id resolves to no row.
var ErrNotFound = errors.New("trips: trip not found")

type Store struct {
	db *gorm.DB
}

func NewStore(d *gorm.DB) *Store {
	return &Store{db: d}
}

func (s *Store) Insert(ctx context.Context, trip *Trip) error {
	if err := s.db.WithContext(ctx).Create(trip).Error; err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Trip, error) {
	var trip Trip
	err := s.db.WithContext(ctx).First(&trip, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (s *Store) GetByTransactionID(ctx context.Context, txID string) (*Trip, error) {
	var trip Trip
	err := s.db.WithContext(ctx).First(&trip, "transaction_id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

// PageAfter returns the next page of trips in (start_time, id) keyset order.
// since (optional) bounds the history; pass the last row of the previous
// page as the cursor, or zero values for the first page.
func (s *Store) PageAfter(ctx context.Context, since *time.Time, afterTime time.Time, afterID uuid.UUID, limit int) ([]Trip, error) {
	q := s.db.WithContext(ctx).Model(&Trip{})
	if since != nil {
		q = q.Where("start_time >= ?", *since)
	}
	if !afterTime.IsZero() {
		q = q.Where("(start_time, id) > (?, ?)", afterTime, afterID)
	}
	var page []Trip
	err := q.Order("start_time, id").Limit(limit).Find(&page).Error
	if err != nil {
		return nil, fmt.Errorf("page trips: %w", err)
	}
	return page, nil
}

// Count reports how many trips a backfill starting at since will stream.
func (s *Store) Count(ctx context.Context, since *time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Trip{})
	if since != nil {
		q = q.Where("start_time >= ?", *since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
