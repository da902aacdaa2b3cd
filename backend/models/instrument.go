package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Instrument is a questionnaire definition addressed by a stable key.
type Instrument struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Domains   []Domain  `json:"domains,omitempty"`
}

type Domain struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	InstrumentID uuid.UUID    `gorm:"type:uuid;not null;index" json:"instrument_id"`
	Code         string       `gorm:"not null;index" json:"code"`
	Title        string       `gorm:"not null" json:"title"`
	Weight       float64      `gorm:"not null;default:0" json:"weight"`
	CreatedAt    time.Time    `json:"created_at"`
	Subsections  []Subsection `json:"subsections,omitempty"`
}

type Subsection struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DomainID  uuid.UUID `gorm:"type:uuid;not null;index" json:"domain_id"`
	Domain    *Domain   `json:"domain,omitempty"`
	Code      string    `gorm:"not null" json:"code"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Items     []Item    `json:"items,omitempty"`
}

// Item codes are only unique within a domain; ID is the durable identity.
type Item struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	SubsectionID     uuid.UUID                   `gorm:"type:uuid;not null;index" json:"subsection_id"`
	Subsection       *Subsection                 `json:"subsection,omitempty"`
	Code             string                      `gorm:"not null;index" json:"code"`
	Title            string                      `gorm:"not null" json:"title"`
	RequiresEvidence bool                        `gorm:"not null;default:false" json:"requires_evidence"`
	EvidenceFiles    datatypes.JSONSlice[string] `json:"evidence_files"`
	CreatedAt        time.Time                   `json:"created_at"`
}

func (m *Instrument) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (m *Domain) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (m *Subsection) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (m *Item) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
