package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/verdantlabs/footprint/internal/identity"
)

// The store keeps exactly one row; the fixed key makes Save an upsert.
const identityRecordKey = 1

// identityRecord is the persisted identity state.
type identityRecord struct {
	ID               int       `gorm:"column:id;primaryKey"`
	SessionID        string    `gorm:"column:session_id;size:190;not null"`
	AccessToken      string    `gorm:"column:access_token;type:text"`
	RefreshToken     string    `gorm:"column:refresh_token;type:text"`
	ExpiresAtSeconds int64     `gorm:"column:expires_at_s;not null;default:0"`
	UserID           string    `gorm:"column:user_id;size:190"`
	UserEmail        string    `gorm:"column:user_email;size:320"`
	UserCreatedAt    time.Time `gorm:"column:user_created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (identityRecord) TableName() string {
	return "identity_state"
}

// Store persists the identity record in the local sqlite database.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store over an opened state database.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database handle is required")
	}
	return &Store{db: db}, nil
}

// Load returns the persisted identity record, reporting whether one exists.
func (s *Store) Load(ctx context.Context) (identity.Record, bool, error) {
	var row identityRecord
	err := s.db.WithContext(ctx).
		Where("id = ?", identityRecordKey).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return identity.Record{}, false, nil
	}
	if err != nil {
		return identity.Record{}, false, fmt.Errorf("state: load identity: %w", err)
	}

	return identity.Record{
		SessionID:        row.SessionID,
		AccessToken:      row.AccessToken,
		RefreshToken:     row.RefreshToken,
		ExpiresAtSeconds: row.ExpiresAtSeconds,
		UserID:           row.UserID,
		UserEmail:        row.UserEmail,
		UserCreatedAt:    row.UserCreatedAt,
	}, true, nil
}

// Save replaces the persisted identity record.
func (s *Store) Save(ctx context.Context, record identity.Record) error {
	row := identityRecord{
		ID:               identityRecordKey,
		SessionID:        record.SessionID,
		AccessToken:      record.AccessToken,
		RefreshToken:     record.RefreshToken,
		ExpiresAtSeconds: record.ExpiresAtSeconds,
		UserID:           record.UserID,
		UserEmail:        record.UserEmail,
		UserCreatedAt:    record.UserCreatedAt,
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("state: save identity: %w", err)
	}
	return nil
}
