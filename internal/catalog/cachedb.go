package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CacheEntry tracks one downloaded catalog archive so re-fetches can be
// conditional across runs. The archive bytes live on disk, only the
// validators are indexed.
type CacheEntry struct {
	FileName     string `gorm:"primaryKey"`
	ETag         string
	LastModified time.Time
	FetchedAt    time.Time
	Size         int64
}

// CacheIndex is the SQLite-backed validator index of the catalog cache.
type CacheIndex struct {
	db *gorm.DB
}

// OpenCacheIndex opens (and migrates) the index at path. Use ":memory:"
// in tests.
func OpenCacheIndex(path string) (*CacheIndex, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open cache index: %w", err)
	}

	if err := db.AutoMigrate(&CacheEntry{}); err != nil {
		return nil, fmt.Errorf("cannot migrate cache index: %w", err)
	}

	return &CacheIndex{db: db}, nil
}

// Get returns the entry for fileName, or nil if unknown.
func (c *CacheIndex) Get(fileName string) (*CacheEntry, error) {
	var entry CacheEntry

	err := c.db.First(&entry, "file_name = ?", fileName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read cache entry %s: %w", fileName, err)
	}

	return &entry, nil
}

func (c *CacheIndex) Put(entry *CacheEntry) error {
	if err := c.db.Save(entry).Error; err != nil {
		return fmt.Errorf("cannot save cache entry %s: %w", entry.FileName, err)
	}

	return nil
}

func (c *CacheIndex) Delete(fileName string) error {
	if err := c.db.Delete(&CacheEntry{}, "file_name = ?", fileName).Error; err != nil {
		return fmt.Errorf("cannot delete cache entry %s: %w", fileName, err)
	}

	return nil
}
