// Package seed loads instrument definitions from YAML into the database.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"evalsurvey/backend/models"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed centro-sim-qa.yaml
var defaultInstrument []byte

var ErrAlreadySeeded = errors.New("instrument already exists")

type File struct {
	Key     string   `yaml:"key" validate:"required"`
	Name    string   `yaml:"name" validate:"required"`
	Domains []Domain `yaml:"domains" validate:"required,min=1,dive"`
}

type Domain struct {
	Code        string       `yaml:"code" validate:"required"`
	Title       string       `yaml:"title" validate:"required"`
	Weight      float64      `yaml:"weight" validate:"gte=0"`
	Subsections []Subsection `yaml:"subsections" validate:"dive"`
}

type Subsection struct {
	Code  string `yaml:"code" validate:"required"`
	Title string `yaml:"title" validate:"required"`
	Items []Item `yaml:"items" validate:"dive"`
}

type Item struct {
	Code             string `yaml:"code" validate:"required"`
	Title            string `yaml:"title" validate:"required"`
	RequiresEvidence bool   `yaml:"requires_evidence"`
}

// Default is the bundled instrument definition.
func Default() (*File, error) {
	return Parse(defaultInstrument)
}

// LoadFile reads and validates an instrument definition from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes strictly, so unknown fields are rejected, then validates.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed yaml: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	if err := f.validateCodes(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &f, nil
}

// Item codes only need to be unique inside their domain.
func (f *File) validateCodes() error {
	domains := make(map[string]struct{}, len(f.Domains))
	for _, d := range f.Domains {
		if _, dup := domains[d.Code]; dup {
			return fmt.Errorf("duplicate domain code %q", d.Code)
		}
		domains[d.Code] = struct{}{}

		items := make(map[string]struct{})
		for _, s := range d.Subsections {
			for _, it := range s.Items {
				if _, dup := items[it.Code]; dup {
					return fmt.Errorf("duplicate item code %q in domain %q", it.Code, d.Code)
				}
				items[it.Code] = struct{}{}
			}
		}
	}
	return nil
}

// Model converts the definition into a nested instrument ready to insert.
func (f *File) Model() *models.Instrument {
	inst := &models.Instrument{Key: f.Key, Name: f.Name}
	for _, d := range f.Domains {
		domain := models.Domain{Code: d.Code, Title: d.Title, Weight: d.Weight}
		for _, s := range d.Subsections {
			sub := models.Subsection{Code: s.Code, Title: s.Title}
			for _, it := range s.Items {
				sub.Items = append(sub.Items, models.Item{
					Code:             it.Code,
					Title:            it.Title,
					RequiresEvidence: it.RequiresEvidence,
				})
			}
			domain.Subsections = append(domain.Subsections, sub)
		}
		inst.Domains = append(inst.Domains, domain)
	}
	return inst
}

// Apply inserts the instrument tree in one transaction. An instrument with
// the same key is left untouched and ErrAlreadySeeded is returned.
func Apply(ctx context.Context, db *gorm.DB, f *File) (*models.Instrument, error) {
	inst := f.Model()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Instrument{}).Where("key = ?", f.Key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadySeeded
		}
		return tx.Create(inst).Error
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}
