package repository

import (
	"context"
	"errors"
	"strings"

	"evalsurvey/backend/models"
	"evalsurvey/backend/reconcile"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstrumentRepository struct {
	db *gorm.DB
}

func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) FindByKey(ctx context.Context, key string) (*models.Instrument, error) {
	var inst models.Instrument
	err := r.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownInstrument
	}
	if err != nil {
		return nil, wrap("find instrument", err)
	}
	return &inst, nil
}

func (r *InstrumentRepository) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	return wrap("create instrument", r.db.WithContext(ctx).Create(inst).Error)
}

// Tree loads the instrument's domains with their subsections and items,
// every level ordered by code.
func (r *InstrumentRepository) Tree(ctx context.Context, instrumentID uuid.UUID) ([]models.Domain, error) {
	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Preload("Subsections", func(db *gorm.DB) *gorm.DB { return db.Order("code") }).
		Preload("Subsections.Items", func(db *gorm.DB) *gorm.DB { return db.Order("code") }).
		Order("code").
		Find(&domains).Error
	if err != nil {
		return nil, wrap("load domain tree", err)
	}
	return domains, nil
}

// Weights maps domain code to weight for the instrument.
func (r *InstrumentRepository) Weights(ctx context.Context, instrumentID uuid.UUID) (map[string]float64, error) {
	var domains []models.Domain
	if err := r.db.WithContext(ctx).
		Select("code", "weight").
		Where("instrument_id = ?", instrumentID).
		Find(&domains).Error; err != nil {
		return nil, wrap("load domain weights", err)
	}
	weights := make(map[string]float64, len(domains))
	for _, d := range domains {
		weights[d.Code] = d.Weight
	}
	return weights, nil
}

func (r *InstrumentRepository) CreateDomain(ctx context.Context, d *models.Domain) error {
	return wrap("create domain", r.db.WithContext(ctx).Create(d).Error)
}

func (r *InstrumentRepository) CreateSubsection(ctx context.Context, s *models.Subsection) error {
	return wrap("create subsection", r.db.WithContext(ctx).Create(s).Error)
}

func (r *InstrumentRepository) CreateItem(ctx context.Context, it *models.Item) error {
	return wrap("create item", r.db.WithContext(ctx).Create(it).Error)
}

func (r *InstrumentRepository) FindDomain(ctx context.Context, id uuid.UUID) (*models.Domain, error) {
	var d models.Domain
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, wrap("find domain", err)
	}
	return &d, nil
}

func (r *InstrumentRepository) FindSubsection(ctx context.Context, id uuid.UUID) (*models.Subsection, error) {
	var s models.Subsection
	if err := r.db.WithContext(ctx).Preload("Domain").First(&s, "id = ?", id).Error; err != nil {
		return nil, wrap("find subsection", err)
	}
	return &s, nil
}

// SetEvidenceFiles replaces the evidence file URLs attached to an item.
func (r *InstrumentRepository) SetEvidenceFiles(ctx context.Context, itemID uuid.UUID, urls []string) (*models.Item, error) {
	var it models.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&it, "id = ?", itemID).Error; err != nil {
			return err
		}
		it.EvidenceFiles = urls
		return tx.Model(&it).Update("evidence_files", it.EvidenceFiles).Error
	})
	if err != nil {
		return nil, wrap("set evidence files", err)
	}
	return &it, nil
}

// DeleteItems removes the items and, first, every answer that references
// them. Both steps share one transaction.
func (r *InstrumentRepository) DeleteItems(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id IN ?", ids).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Item{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, wrap("delete items", err)
	}
	return deleted, nil
}

// DeleteAllItems clears every item of the instrument, answers first.
func (r *InstrumentRepository) DeleteAllItems(ctx context.Context, instrumentID uuid.UUID) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := itemsOfInstrument(tx, instrumentID)
		if err := tx.Where("item_id IN (?)", items).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN (?)", itemsOfInstrument(tx, instrumentID)).Delete(&models.Item{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, wrap("delete all items", err)
	}
	return deleted, nil
}

// DeleteSubsection removes a subsection with its items and their answers.
func (r *InstrumentRepository) DeleteSubsection(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := tx.Model(&models.Item{}).Select("id").Where("subsection_id = ?", id)
		if err := tx.Where("item_id IN (?)", items).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subsection_id = ?", id).Delete(&models.Item{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Subsection{})
		if res.Error == nil && res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return res.Error
	})
	return wrap("delete subsection", err)
}

// DeleteDomain removes a domain and everything below it.
func (r *InstrumentRepository) DeleteDomain(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subsections := tx.Model(&models.Subsection{}).Select("id").Where("domain_id = ?", id)
		items := tx.Model(&models.Item{}).Select("id").Where("subsection_id IN (?)", subsections)
		if err := tx.Where("item_id IN (?)", items).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		subsections = tx.Model(&models.Subsection{}).Select("id").Where("domain_id = ?", id)
		if err := tx.Where("subsection_id IN (?)", subsections).Delete(&models.Item{}).Error; err != nil {
			return err
		}
		if err := tx.Where("domain_id = ?", id).Delete(&models.Subsection{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Domain{})
		if res.Error == nil && res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return res.Error
	})
	return wrap("delete domain", err)
}

func itemsOfInstrument(tx *gorm.DB, instrumentID uuid.UUID) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).
		Table("items").
		Select("items.id").
		Joins("JOIN subsections ON subsections.id = items.subsection_id").
		Joins("JOIN domains ON domains.id = subsections.domain_id").
		Where("domains.instrument_id = ?", instrumentID)
}

// Lookup returns the item resolver used by answer reconciliation, scoped to
// one instrument.
func (r *InstrumentRepository) Lookup(instrumentID uuid.UUID) reconcile.Lookup {
	return &itemLookup{db: r.db, instrumentID: instrumentID}
}

type itemLookup struct {
	db           *gorm.DB
	instrumentID uuid.UUID
}

type itemRow struct {
	ID         uuid.UUID
	Code       string
	DomainCode string
}

func (l *itemLookup) query(ctx context.Context) *gorm.DB {
	return l.db.WithContext(ctx).
		Table("items").
		Select("items.id AS id, items.code AS code, domains.code AS domain_code").
		Joins("JOIN subsections ON subsections.id = items.subsection_id").
		Joins("JOIN domains ON domains.id = subsections.domain_id").
		Where("domains.instrument_id = ?", l.instrumentID)
}

// ResolveByID answers every raw key, so the same id sent in different text
// forms (case, braces, urn prefix) resolves once per form.
func (l *itemLookup) ResolveByID(ctx context.Context, ids []string) ([]reconcile.Resolution, error) {
	keysOf := make(map[uuid.UUID][]string, len(ids))
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if _, seen := keysOf[id]; !seen {
			parsed = append(parsed, id)
		}
		keysOf[id] = append(keysOf[id], raw)
	}
	if len(parsed) == 0 {
		return nil, nil
	}

	var rows []itemRow
	if err := l.query(ctx).Where("items.id IN ?", parsed).Scan(&rows).Error; err != nil {
		return nil, wrap("resolve items by id", err)
	}
	out := make([]reconcile.Resolution, 0, len(ids))
	for _, row := range rows {
		ref := reconcile.ItemRef{ID: row.ID.String(), Code: row.Code, DomainCode: row.DomainCode}
		for _, raw := range keysOf[row.ID] {
			out = append(out, reconcile.Resolution{Key: raw, Matches: []reconcile.ItemRef{ref}})
		}
	}
	return out, nil
}

func (l *itemLookup) ResolveByCode(ctx context.Context, codes []string) ([]reconcile.Resolution, error) {
	var rows []itemRow
	if err := l.query(ctx).Where("items.code IN ?", codes).Order("domains.code").Scan(&rows).Error; err != nil {
		return nil, wrap("resolve items by code", err)
	}
	at := make(map[string]int)
	out := make([]reconcile.Resolution, 0, len(codes))
	for _, row := range rows {
		i, ok := at[row.Code]
		if !ok {
			i = len(out)
			at[row.Code] = i
			out = append(out, reconcile.Resolution{Key: row.Code})
		}
		out[i].Matches = append(out[i].Matches, reconcile.ItemRef{ID: row.ID.String(), Code: row.Code, DomainCode: row.DomainCode})
	}
	return out, nil
}
