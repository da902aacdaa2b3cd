package repository

import (
	"context"
	"sort"
	"time"

	"evalsurvey/backend/models"
	"evalsurvey/backend/scoring"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Period is the half-open interval [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

type Totals struct {
	Evaluations   int64 `json:"evaluations"`
	Answers       int64 `json:"answers"`
	NotApplicable int64 `json:"not_applicable"`
	Items         int64 `json:"items"`
	Users         int64 `json:"users"`
	Files         int64 `json:"files"`
}

type DailyCount struct {
	Date        string `json:"date"`
	Evaluations int    `json:"evaluations"`
}

// DomainAverage pools every applicable answer of a domain in the period.
type DomainAverage struct {
	Code    string  `json:"code"`
	Title   string  `json:"title"`
	Weight  float64 `json:"weight"`
	Answers int64   `json:"answers"`
	Points  int64   `json:"points"`
	Raw     float64 `json:"raw"`
}

type AnalyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) inPeriod(ctx context.Context, instrumentID uuid.UUID, p Period) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Evaluation{}).
		Where("instrument_id = ? AND created_at >= ? AND created_at < ?", instrumentID, p.From, p.To)
}

func (r *AnalyticsRepository) Totals(ctx context.Context, instrumentID uuid.UUID, p Period) (Totals, error) {
	var t Totals
	db := r.db.WithContext(ctx)

	if err := r.inPeriod(ctx, instrumentID, p).Count(&t.Evaluations).Error; err != nil {
		return t, wrap("count evaluations", err)
	}
	evals := r.inPeriod(ctx, instrumentID, p).Select("id")
	if err := db.Model(&models.Answer{}).Where("evaluation_id IN (?)", evals).Count(&t.Answers).Error; err != nil {
		return t, wrap("count answers", err)
	}
	if err := db.Model(&models.Answer{}).
		Where("evaluation_id IN (?) AND not_applicable = ?", r.inPeriod(ctx, instrumentID, p).Select("id"), true).
		Count(&t.NotApplicable).Error; err != nil {
		return t, wrap("count answers", err)
	}
	if err := db.Model(&models.Item{}).
		Where("subsection_id IN (?)", db.Model(&models.Subsection{}).Select("subsections.id").
			Joins("JOIN domains ON domains.id = subsections.domain_id").
			Where("domains.instrument_id = ?", instrumentID)).
		Count(&t.Items).Error; err != nil {
		return t, wrap("count items", err)
	}
	if err := db.Model(&models.UserProfile{}).Count(&t.Users).Error; err != nil {
		return t, wrap("count users", err)
	}
	if err := db.Model(&models.UploadedFile{}).Count(&t.Files).Error; err != nil {
		return t, wrap("count files", err)
	}
	return t, nil
}

// Daily buckets submissions by calendar day in loc, oldest first. Days
// without submissions are omitted.
func (r *AnalyticsRepository) Daily(ctx context.Context, instrumentID uuid.UUID, p Period, loc *time.Location) ([]DailyCount, error) {
	var stamps []time.Time
	if err := r.inPeriod(ctx, instrumentID, p).Pluck("created_at", &stamps).Error; err != nil {
		return nil, wrap("list submission times", err)
	}
	byDay := map[string]int{}
	for _, t := range stamps {
		byDay[t.In(loc).Format("2006-01-02")]++
	}
	out := make([]DailyCount, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, DailyCount{Date: day, Evaluations: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// DomainAverages returns one entry per domain with at least one applicable
// answer in the period, ordered by domain code.
func (r *AnalyticsRepository) DomainAverages(ctx context.Context, instrumentID uuid.UUID, p Period) ([]DomainAverage, error) {
	var out []DomainAverage
	err := r.db.WithContext(ctx).
		Table("answers").
		Select("domains.code AS code, domains.title AS title, domains.weight AS weight, COUNT(*) AS answers, COALESCE(SUM(answers.score), 0) AS points").
		Joins("JOIN evaluations ON evaluations.id = answers.evaluation_id").
		Joins("JOIN items ON items.id = answers.item_id").
		Joins("JOIN subsections ON subsections.id = items.subsection_id").
		Joins("JOIN domains ON domains.id = subsections.domain_id").
		Where("domains.instrument_id = ? AND answers.not_applicable = ?", instrumentID, false).
		Where("evaluations.created_at >= ? AND evaluations.created_at < ?", p.From, p.To).
		Group("domains.code, domains.title, domains.weight").
		Order("domains.code").
		Scan(&out).Error
	if err != nil {
		return nil, wrap("aggregate domain scores", err)
	}
	for i := range out {
		if out[i].Answers > 0 {
			out[i].Raw = float64(out[i].Points) / float64(out[i].Answers*scoring.MaxItemScore)
		}
	}
	return out, nil
}
