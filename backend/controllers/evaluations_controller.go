package controllers

import (
	"strconv"

	"evalsurvey/backend/config"
	"evalsurvey/backend/repository"
	"evalsurvey/backend/scoring"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EvaluationsController struct {
	Evaluations *repository.EvaluationRepository
	Instruments *repository.InstrumentRepository
	Cfg         *config.Config
}

func NewEvaluationsController(db *gorm.DB, cfg *config.Config) *EvaluationsController {
	return &EvaluationsController{
		Evaluations: repository.NewEvaluationRepository(db),
		Instruments: repository.NewInstrumentRepository(db),
		Cfg:         cfg,
	}
}

// ListEvaluations godoc
// @Summary List submitted evaluations
// @Description Returns evaluations newest first with their answer counts
// @Tags evaluations
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} utils.PaginatedResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/evaluations [get]
func (ec *EvaluationsController) ListEvaluations(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	items, total, err := ec.Evaluations.List(c.UserContext(), page, pageSize)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch evaluations", err.Error())
	}
	return utils.Paginate(c, items, total, page, pageSize)
}

func (ec *EvaluationsController) GetEvaluation(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid evaluation id")
	}
	eval, err := ec.Evaluations.Get(c.UserContext(), id)
	if repository.IsNotFound(err) {
		return utils.NotFound(c, "Evaluation not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch evaluation", err.Error())
	}
	return c.JSON(eval)
}

// GetScore godoc
// @Summary Score an evaluation
// @Description Computes per-domain raw and weighted compliance and the overall percentage
// @Tags evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} scoring.Report
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/evaluations/{id}/score [get]
func (ec *EvaluationsController) GetScore(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid evaluation id")
	}

	eval, err := ec.Evaluations.Header(ctx, id)
	if repository.IsNotFound(err) {
		return utils.NotFound(c, "Evaluation not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch evaluation", err.Error())
	}
	weights, err := ec.Instruments.Weights(ctx, eval.InstrumentID)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch domain weights", err.Error())
	}
	answers, err := ec.Evaluations.ScoringAnswers(ctx, eval.ID)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch answers", err.Error())
	}

	return c.JSON(fiber.Map{
		"evaluation_id": eval.ID,
		"report":        scoring.Compute(answers, weights),
		"summary":       scoring.Summarize(answers),
	})
}

func (ec *EvaluationsController) DeleteEvaluation(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid evaluation id")
	}
	err := ec.Evaluations.Delete(c.UserContext(), id)
	if repository.IsNotFound(err) {
		return utils.NotFound(c, "Evaluation not found")
	}
	if err != nil {
		return utils.InternalServerError(c, utils.DescribeDeleteError(err), err.Error())
	}
	return utils.NoContent(c)
}

type UpdateAnswerRequest struct {
	Evidence     *string `json:"evidence" validate:"omitempty,max=5000"`
	Observations *string `json:"observations" validate:"omitempty,max=5000"`
}

// UpdateAnswer edits the free-text fields of an answer. Scores are immutable.
func (ec *EvaluationsController) UpdateAnswer(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid answer id")
	}
	var req UpdateAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	answer, err := ec.Evaluations.UpdateAnswerNotes(c.UserContext(), id, req.Evidence, req.Observations)
	if repository.IsNotFound(err) {
		return utils.NotFound(c, "Answer not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not update answer", err.Error())
	}
	return c.JSON(answer)
}
