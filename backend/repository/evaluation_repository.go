package repository

import (
	"context"
	"errors"

	"evalsurvey/backend/models"
	"evalsurvey/backend/scoring"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// EvaluationListItem is an evaluation header with its answer count.
type EvaluationListItem struct {
	models.Evaluation
	AnswersCount int64 `json:"answers_count"`
}

// Create inserts the evaluation and all of its answers in one transaction.
// On any failure nothing is kept.
func (r *EvaluationRepository) Create(ctx context.Context, eval *models.Evaluation, answers []models.Answer) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Answers", "Instrument").Create(eval).Error; err != nil {
			return &PersistenceError{Op: "insert evaluation", Err: err}
		}
		for i := range answers {
			answers[i].EvaluationID = eval.ID
		}
		if len(answers) == 0 {
			return nil
		}
		if err := tx.Omit("Item").CreateInBatches(answers, 200).Error; err != nil {
			return &PersistenceError{Op: "insert answers", Err: err}
		}
		return nil
	})
	if err != nil {
		return wrap("create evaluation", err)
	}
	eval.Answers = answers
	return nil
}

// FindByIdempotencyKey returns the evaluation recorded under key together with
// its answer count, or ErrNotFound.
func (r *EvaluationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Evaluation, int64, error) {
	var eval models.Evaluation
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&eval).Error
	if err != nil {
		return nil, 0, wrap("find evaluation by idempotency key", err)
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Answer{}).Where("evaluation_id = ?", eval.ID).Count(&count).Error; err != nil {
		return nil, 0, wrap("count answers", err)
	}
	return &eval, count, nil
}

// List returns one page of evaluations, newest first.
func (r *EvaluationRepository) List(ctx context.Context, page, pageSize int) ([]EvaluationListItem, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Evaluation{}).Count(&total).Error; err != nil {
		return nil, 0, wrap("count evaluations", err)
	}

	var evals []models.Evaluation
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&evals).Error; err != nil {
		return nil, 0, wrap("list evaluations", err)
	}

	counts, err := r.answerCounts(ctx, evals)
	if err != nil {
		return nil, 0, err
	}
	out := make([]EvaluationListItem, len(evals))
	for i, e := range evals {
		out[i] = EvaluationListItem{Evaluation: e, AnswersCount: counts[e.ID]}
	}
	return out, total, nil
}

func (r *EvaluationRepository) answerCounts(ctx context.Context, evals []models.Evaluation) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(evals))
	if len(evals) == 0 {
		return counts, nil
	}
	ids := make([]uuid.UUID, len(evals))
	for i, e := range evals {
		ids[i] = e.ID
	}
	var rows []struct {
		EvaluationID uuid.UUID
		Total        int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Answer{}).
		Select("evaluation_id, COUNT(*) AS total").
		Where("evaluation_id IN ?", ids).
		Group("evaluation_id").
		Scan(&rows).Error; err != nil {
		return nil, wrap("count answers", err)
	}
	for _, row := range rows {
		counts[row.EvaluationID] = row.Total
	}
	return counts, nil
}

// Get loads an evaluation with its answers and the item hierarchy behind them.
func (r *EvaluationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Instrument").
		Preload("Answers.Item.Subsection.Domain").
		First(&eval, "id = ?", id).Error
	if err != nil {
		return nil, wrap("get evaluation", err)
	}
	return &eval, nil
}

// Header loads the evaluation row alone, without answers or instrument.
func (r *EvaluationRepository) Header(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := r.db.WithContext(ctx).First(&eval, "id = ?", id).Error; err != nil {
		return nil, wrap("get evaluation", err)
	}
	return &eval, nil
}

// ScoringAnswers projects the evaluation's answers onto their domain codes.
func (r *EvaluationRepository) ScoringAnswers(ctx context.Context, evaluationID uuid.UUID) ([]scoring.Answer, error) {
	var rows []struct {
		DomainCode    string
		Score         *int
		NotApplicable bool
	}
	err := r.db.WithContext(ctx).
		Table("answers").
		Select("domains.code AS domain_code, answers.score AS score, answers.not_applicable AS not_applicable").
		Joins("JOIN items ON items.id = answers.item_id").
		Joins("JOIN subsections ON subsections.id = items.subsection_id").
		Joins("JOIN domains ON domains.id = subsections.domain_id").
		Where("answers.evaluation_id = ?", evaluationID).
		Order("domains.code, subsections.code, items.code").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("load answers for scoring", err)
	}
	out := make([]scoring.Answer, len(rows))
	for i, row := range rows {
		out[i] = scoring.Answer{DomainCode: row.DomainCode, Score: row.Score, NotApplicable: row.NotApplicable}
	}
	return out, nil
}

// Delete removes an evaluation and its answers.
func (r *EvaluationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("evaluation_id = ?", id).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Evaluation{})
		if res.Error == nil && res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return res.Error
	})
	return wrap("delete evaluation", err)
}

// UpdateAnswerNotes changes the free-text fields of an answer. Nil leaves a
// field untouched; an empty string clears it.
func (r *EvaluationRepository) UpdateAnswerNotes(ctx context.Context, answerID uuid.UUID, evidence, observations *string) (*models.Answer, error) {
	var answer models.Answer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&answer, "id = ?", answerID).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if evidence != nil {
			updates["evidence"] = nullable(*evidence)
		}
		if observations != nil {
			updates["observations"] = nullable(*observations)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&answer).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&answer, "id = ?", answerID).Error
	})
	if err != nil {
		return nil, wrap("update answer", err)
	}
	return &answer, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ExportEvaluations returns the selected evaluations, newest first. An empty
// selection means all of them.
func (r *EvaluationRepository) ExportEvaluations(ctx context.Context, ids []uuid.UUID) ([]models.Evaluation, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var evals []models.Evaluation
	if err := q.Find(&evals).Error; err != nil {
		return nil, wrap("load evaluations for export", err)
	}
	return evals, nil
}

// ExportAnswers returns the answers of the given evaluations with item,
// subsection and domain attached.
func (r *EvaluationRepository) ExportAnswers(ctx context.Context, ids []uuid.UUID) ([]models.Answer, error) {
	q := r.db.WithContext(ctx).Preload("Item.Subsection.Domain")
	if len(ids) > 0 {
		q = q.Where("evaluation_id IN ?", ids)
	}
	var answers []models.Answer
	if err := q.Find(&answers).Error; err != nil {
		return nil, wrap("load answers for export", err)
	}
	return answers, nil
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
