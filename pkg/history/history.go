// Package history keeps a local journal of processed photos. Its only job is
// to warn before the same image (by content hash) is uploaded twice — the
// activity endpoint has no idempotency key, so a resubmission would create a
// duplicate activity remotely.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agonajredini/Treadmill-to-Strava/models"
)

// Journal wraps the sqlite-backed upload log.
type Journal struct {
	db *gorm.DB
}

// Open opens (creating if needed) the journal database at path and migrates
// the schema.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&models.UploadRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// HashFile returns the hex SHA-256 of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open image for hashing: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Record appends one journal row. The RecordID is assigned here.
func (j *Journal) Record(rec *models.UploadRecord) error {
	rec.RecordID = uuid.New().String()
	if err := j.db.Create(rec).Error; err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// FindUploadedByHash returns the most recent successful upload of an image
// with the given content hash, or nil when none exists.
func (j *Journal) FindUploadedByHash(sha string) (*models.UploadRecord, error) {
	var rec models.UploadRecord
	err := j.db.
		Where("image_sha256 = ? AND status = ?", sha, models.StatusUploaded).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return &rec, nil
}

// List returns the latest records, newest first.
func (j *Journal) List(limit int) ([]models.UploadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []models.UploadRecord
	if err := j.db.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return recs, nil
}
