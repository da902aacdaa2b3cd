package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadedFile records an evidence file kept in object storage.
type UploadedFile struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	ObjectKey   string     `gorm:"uniqueIndex;not null" json:"object_key"`
	URL         string     `gorm:"not null" json:"url"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	UploadedBy  *uuid.UUID `gorm:"type:uuid" json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

func (m *UploadedFile) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

