package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentBlob stores one opaque document save per logical key.
type DocumentBlob struct {
	Key              string `gorm:"column:blob_key;primaryKey;size:190;not null"`
	Content          []byte `gorm:"column:content;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentBlob) TableName() string {
	return "document_blobs"
}

// DatabaseStore keeps blobs in the document_blobs table, matching the
// filesystem store's key layout.
type DatabaseStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// DatabaseStoreConfig describes the dependencies of a DatabaseStore.
type DatabaseStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// NewDatabaseStore constructs a DatabaseStore.
func NewDatabaseStore(cfg DatabaseStoreConfig) (*DatabaseStore, error) {
	if cfg.Database == nil {
		return nil, errors.New("storage: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DatabaseStore{db: cfg.Database, clock: clock}, nil
}

// Read returns the blob content and whether the key exists.
func (s *DatabaseStore) Read(key string) ([]byte, bool, error) {
	var blob DocumentBlob
	err := s.db.Where("blob_key = ?", key).Take(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob.Content, true, nil
}

// Write upserts the blob; the row swap is atomic at the database level.
func (s *DatabaseStore) Write(key string, content []byte) error {
	blob := DocumentBlob{
		Key:              key,
		Content:          content,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "blob_key"}},
		UpdateAll: true,
	}).Create(&blob).Error
}

// Delete removes the blob; deleting a missing key is not an error.
func (s *DatabaseStore) Delete(key string) error {
	return s.db.Where("blob_key = ?", key).Delete(&DocumentBlob{}).Error
}

// Keys lists every stored logical key.
func (s *DatabaseStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&DocumentBlob{}).Order("blob_key ASC").Pluck("blob_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}
