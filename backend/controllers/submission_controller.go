package controllers

import (
	"errors"
	"strings"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/metrics"
	"evalsurvey/backend/models"
	"evalsurvey/backend/reconcile"
	"evalsurvey/backend/repository"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionController struct {
	Instruments *repository.InstrumentRepository
	Evaluations *repository.EvaluationRepository
	Cfg         *config.Config
	Log         *utils.Logger
	Metrics     *metrics.Metrics
}

func NewSubmissionController(db *gorm.DB, cfg *config.Config, log *utils.Logger, m *metrics.Metrics) *SubmissionController {
	return &SubmissionController{
		Instruments: repository.NewInstrumentRepository(db),
		Evaluations: repository.NewEvaluationRepository(db),
		Cfg:         cfg,
		Log:         log.With("controller", "submission"),
		Metrics:     m,
	}
}

type SubmitRequest struct {
	Evaluation SubmitEvaluation `json:"evaluation"`
	Answers    []SubmitAnswer   `json:"answers" validate:"required,min=1,dive"`
}

type SubmitEvaluation struct {
	InstrumentKey  string                 `json:"instrumentKey"`
	Context        map[string]interface{} `json:"context"`
	IdempotencyKey string                 `json:"idempotencyKey" validate:"omitempty,max=200"`
}

type SubmitAnswer struct {
	ItemID        string  `json:"itemId"`
	ItemCode      string  `json:"itemCode"`
	DomainCode    string  `json:"domainCode" validate:"required"`
	Score         *int    `json:"score" validate:"omitempty,min=0,max=2"`
	NotApplicable bool    `json:"notApplicable"`
	Evidence      *string `json:"evidence"`
	Observations  *string `json:"observations"`
}

type SubmitResponse struct {
	OK                bool   `json:"ok"`
	EvaluationID      string `json:"evaluationId"`
	AnswersCount      int    `json:"answersCount"`
	DuplicatesDropped int    `json:"duplicatesDropped"`
	Replayed          bool   `json:"replayed,omitempty"`
}

// Submit godoc
// @Summary Submit a completed questionnaire
// @Description Reconciles the answers against the instrument's items and stores the evaluation with all of its answers atomically
// @Tags submissions
// @Accept json
// @Produce json
// @Param input body SubmitRequest true "Evaluation and answers"
// @Success 201 {object} SubmitResponse
// @Success 200 {object} SubmitResponse "Replayed idempotent submission"
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /submit [post]
func (sc *SubmissionController) Submit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		sc.Metrics.Submission("rejected", 0)
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if strings.TrimSpace(req.Evaluation.InstrumentKey) == "" {
		req.Evaluation.InstrumentKey = sc.Cfg.DefaultInstrumentKey
	}
	if req.Evaluation.Context == nil {
		req.Evaluation.Context = map[string]interface{}{}
	}
	if len(req.Answers) == 0 {
		sc.Metrics.Submission("rejected", 0)
		return utils.BadRequest(c, reconcile.ErrEmptyBatch.Error())
	}
	if err := validate.Struct(&req); err != nil {
		sc.Metrics.Submission("rejected", 0)
		return utils.ValidationError(c, validationDetails(err))
	}

	idemKey := strings.TrimSpace(req.Evaluation.IdempotencyKey)
	if idemKey != "" {
		existing, count, err := sc.Evaluations.FindByIdempotencyKey(ctx, idemKey)
		switch {
		case err == nil:
			sc.Metrics.Submission("replayed", 0)
			return c.Status(fiber.StatusOK).JSON(SubmitResponse{
				OK:           true,
				EvaluationID: existing.ID.String(),
				AnswersCount: int(count),
				Replayed:     true,
			})
		case !repository.IsNotFound(err):
			return sc.persistenceFailure(c, err)
		}
	}

	inst, err := sc.Instruments.FindByKey(ctx, req.Evaluation.InstrumentKey)
	if errors.Is(err, repository.ErrUnknownInstrument) {
		sc.Metrics.Submission("rejected", 0)
		return utils.BadRequest(c, "Instrument not found", fiber.Map{"instrumentKey": req.Evaluation.InstrumentKey})
	}
	if err != nil {
		return sc.persistenceFailure(c, err)
	}

	entries := make([]reconcile.Entry, len(req.Answers))
	for i, a := range req.Answers {
		entries[i] = reconcile.Entry{
			ItemID:        a.ItemID,
			ItemCode:      a.ItemCode,
			DomainCode:    a.DomainCode,
			Score:         a.Score,
			NotApplicable: a.NotApplicable,
			Evidence:      a.Evidence,
			Observations:  a.Observations,
		}
	}
	result, err := reconcile.Reconcile(ctx, sc.Instruments.Lookup(inst.ID), entries)
	if err != nil {
		if reconcile.IsValidation(err) {
			sc.Metrics.Submission("rejected", 0)
			return utils.BadRequest(c, err.Error(), reconcileDetails(err))
		}
		return sc.persistenceFailure(c, err)
	}

	evalCtx := enrichContext(req.Evaluation.Context, c, time.Now())
	eval := &models.Evaluation{InstrumentID: inst.ID, Context: evalCtx}
	if idemKey != "" {
		eval.IdempotencyKey = &idemKey
	}
	answers := make([]models.Answer, len(result.Rows))
	for i, row := range result.Rows {
		answers[i] = models.Answer{
			ItemID:        uuid.MustParse(row.ItemID),
			Score:         row.Score,
			NotApplicable: row.NotApplicable,
			Evidence:      row.Evidence,
			Observations:  row.Observations,
		}
	}
	if err := sc.Evaluations.Create(ctx, eval, answers); err != nil {
		return sc.persistenceFailure(c, err)
	}

	if result.Duplicates > 0 {
		sc.Log.Info("dropped duplicate answers", "evaluation_id", eval.ID, "duplicates", result.Duplicates)
	}
	sc.Metrics.Submission("created", result.Duplicates)

	return utils.Created(c, SubmitResponse{
		OK:                true,
		EvaluationID:      eval.ID.String(),
		AnswersCount:      len(answers),
		DuplicatesDropped: result.Duplicates,
	})
}

func (sc *SubmissionController) persistenceFailure(c *fiber.Ctx, err error) error {
	sc.Metrics.Submission("failed", 0)
	sc.Log.Error("submission failed", "error", err)
	var pe *repository.PersistenceError
	if errors.As(err, &pe) {
		return utils.InternalServerError(c, "Could not save evaluation", pe.Err.Error())
	}
	return utils.InternalServerError(c, "Could not save evaluation", err.Error())
}

// enrichContext fills submitter identity and time from the session without
// overwriting values the client sent.
func enrichContext(in map[string]interface{}, c *fiber.Ctx, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	setIfAbsent := func(key, value string) {
		if value == "" {
			return
		}
		if s, ok := out[key].(string); ok && s != "" {
			return
		}
		out[key] = value
	}
	if claims, ok := utils.ClaimsFromContext(c); ok {
		setIfAbsent("userName", claims.Name)
		setIfAbsent("userEmail", claims.Email)
		setIfAbsent("userId", claims.UserID)
	}
	setIfAbsent("submittedAt", now.UTC().Format(time.RFC3339))
	return out
}

func reconcileDetails(err error) interface{} {
	var (
		malformed *reconcile.MalformedEntryError
		code      *reconcile.UnknownItemCodeError
		id        *reconcile.UnknownItemIDError
		ambiguous *reconcile.AmbiguousItemCodeError
	)
	switch {
	case errors.As(err, &malformed):
		return fiber.Map{"index": malformed.Index, "reason": malformed.Reason}
	case errors.As(err, &code):
		return fiber.Map{"missing": code.Codes}
	case errors.As(err, &id):
		return fiber.Map{"missing_ids": id.IDs}
	case errors.As(err, &ambiguous):
		return fiber.Map{"ambiguous": ambiguous.Codes}
	}
	return nil
}
