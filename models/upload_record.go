package models

import "time"

// Upload outcome values stored in UploadRecord.Status.
const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// UploadRecord is one row of the local upload journal. Kept so a re-selected
// image (same content hash) can be flagged before it creates a duplicate
// activity on the remote side.
type UploadRecord struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RecordID    string `gorm:"size:36;not null;uniqueIndex"` // uuid
	ImagePath   string `gorm:"size:512;not null"`
	ImageSHA256 string `gorm:"size:64;not null;index"`
	ElapsedTime string `gorm:"size:16"` // raw "MM:SS" as parsed
	Distance    string `gorm:"size:16"` // raw "D.DD" as parsed
	StartDate   string `gorm:"size:32"` // start_date_local sent to the API
	ActivityID  int64  `gorm:"index"`   // remote activity id, 0 when not uploaded
	Status      string `gorm:"size:16;not null;index"`
	Detail      string `gorm:"size:512"` // failure reason or skip notice
}
