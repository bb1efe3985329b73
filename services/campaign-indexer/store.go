package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fundvault/core/events"
)

// StoredEvent is the indexer's durable projection of a node event.
type StoredEvent struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex" json:"sequence"`
	Type       string    `gorm:"index" json:"type"`
	Campaign   string    `gorm:"index" json:"campaign,omitempty"`
	Attributes string    `json:"attributes"`
	ObservedAt time.Time `json:"observedAt"`
}

// Store persists node events into a local SQLite database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and migrates) the event database at path.
func NewStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if err := db.AutoMigrate(&StoredEvent{}); err != nil {
		return nil, fmt.Errorf("migrate event store: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert records an observed event. Replayed sequences are ignored so the
// stream consumer can resume from any cursor without duplicating rows.
func (s *Store) Insert(record events.Record) error {
	if record.Event == nil {
		return errors.New("record missing event payload")
	}
	attrs, err := json.Marshal(record.Event.Attributes)
	if err != nil {
		return err
	}
	stored := &StoredEvent{
		ID:         uuid.NewString(),
		Sequence:   record.Sequence,
		Type:       record.Event.Type,
		Campaign:   record.Event.Attributes["campaign"],
		Attributes: string(attrs),
		ObservedAt: time.Now().UTC(),
	}
	err = s.db.Create(stored).Error
	if err != nil && (errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err)) {
		return nil
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// LatestSequence returns the highest stored sequence, zero when empty.
func (s *Store) LatestSequence() (uint64, error) {
	var latest StoredEvent
	err := s.db.Order("sequence desc").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Sequence, nil
}

// ListEvents returns up to limit stored events with sequence greater than
// after, in ascending sequence order.
func (s *Store) ListEvents(after uint64, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []StoredEvent
	err := s.db.Where("sequence > ?", after).Order("sequence asc").Limit(limit).Find(&out).Error
	return out, err
}

// CampaignEvents returns the stored events attributed to one campaign.
func (s *Store) CampaignEvents(campaignID string, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []StoredEvent
	err := s.db.Where("campaign = ?", campaignID).Order("sequence asc").Limit(limit).Find(&out).Error
	return out, err
}
