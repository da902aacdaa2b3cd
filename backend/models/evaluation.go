package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evaluation is one submitted questionnaire. It is never updated after
// creation; deleting it removes its answers.
type Evaluation struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	InstrumentID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"instrument_id"`
	Instrument     *Instrument       `json:"instrument,omitempty"`
	Context        datatypes.JSONMap `json:"context"`
	IdempotencyKey *string           `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
	Answers        []Answer          `json:"answers,omitempty"`
}

// Answer holds at most one response per (evaluation, item).
type Answer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EvaluationID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answers_evaluation_item" json:"evaluation_id"`
	ItemID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_answers_evaluation_item;index" json:"item_id"`
	Item          *Item     `json:"item,omitempty"`
	Score         *int      `gorm:"check:score >= 0 AND score <= 2" json:"score"`
	NotApplicable bool      `gorm:"not null;default:false" json:"not_applicable"`
	Evidence      *string   `json:"evidence"`
	Observations  *string   `json:"observations"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (m *Evaluation) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (m *Answer) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

