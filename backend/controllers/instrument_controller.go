package controllers

import (
	"context"
	"errors"
	"strings"

	"evalsurvey/backend/cache"
	"evalsurvey/backend/config"
	"evalsurvey/backend/models"
	"evalsurvey/backend/repository"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstrumentController struct {
	Repo  *repository.InstrumentRepository
	Cache *cache.TreeCache
	Cfg   *config.Config
	Log   *utils.Logger
}

func NewInstrumentController(db *gorm.DB, cfg *config.Config, treeCache *cache.TreeCache, log *utils.Logger) *InstrumentController {
	return &InstrumentController{
		Repo:  repository.NewInstrumentRepository(db),
		Cache: treeCache,
		Cfg:   cfg,
		Log:   log.With("controller", "instrument"),
	}
}

// GetTree godoc
// @Summary Get the questionnaire tree
// @Description Returns domains with their subsections and items, ordered by code
// @Tags instruments
// @Produce json
// @Param key path string true "Instrument key"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /instruments/{key}/tree [get]
func (ic *InstrumentController) GetTree(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Params("key")
	if key == "" || key == "default" {
		key = ic.Cfg.DefaultInstrumentKey
	}

	inst, err := ic.Repo.FindByKey(ctx, key)
	if errors.Is(err, repository.ErrUnknownInstrument) {
		return utils.NotFound(c, "Instrument not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not load instrument", err.Error())
	}

	domains, err := ic.Cache.GetOrLoad(ctx, inst.Key, func(ctx context.Context) ([]models.Domain, error) {
		return ic.Repo.Tree(ctx, inst.ID)
	})
	if err != nil {
		return utils.InternalServerError(c, "Could not load instrument", err.Error())
	}

	return c.JSON(fiber.Map{
		"instrument": inst,
		"domains":    domains,
	})
}

type CreateInstrumentRequest struct {
	Key  string `json:"key" validate:"required,max=100"`
	Name string `json:"name" validate:"required"`
}

func (ic *InstrumentController) CreateInstrument(c *fiber.Ctx) error {
	var req CreateInstrumentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	req.Key = strings.TrimSpace(req.Key)
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	inst := &models.Instrument{Key: req.Key, Name: req.Name}
	if err := ic.Repo.CreateInstrument(c.UserContext(), inst); err != nil {
		return utils.InternalServerError(c, "Could not create instrument", err.Error())
	}
	return utils.Created(c, inst)
}

type CreateDomainRequest struct {
	InstrumentKey string  `json:"instrument_key"`
	Code          string  `json:"code" validate:"required"`
	Title         string  `json:"title" validate:"required"`
	Weight        float64 `json:"weight" validate:"gte=0,lte=1"`
}

func (ic *InstrumentController) CreateDomain(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var req CreateDomainRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}
	if req.InstrumentKey == "" {
		req.InstrumentKey = ic.Cfg.DefaultInstrumentKey
	}

	inst, err := ic.Repo.FindByKey(ctx, req.InstrumentKey)
	if errors.Is(err, repository.ErrUnknownInstrument) {
		return utils.BadRequest(c, "Instrument not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not create domain", err.Error())
	}

	d := &models.Domain{InstrumentID: inst.ID, Code: strings.TrimSpace(req.Code), Title: req.Title, Weight: req.Weight}
	if err := ic.Repo.CreateDomain(ctx, d); err != nil {
		return utils.InternalServerError(c, "Could not create domain", err.Error())
	}
	ic.Cache.Invalidate(ctx)
	return utils.Created(c, d)
}

type CreateSubsectionRequest struct {
	DomainID string `json:"domain_id" validate:"required,uuid"`
	Code     string `json:"code" validate:"required"`
	Title    string `json:"title" validate:"required"`
}

func (ic *InstrumentController) CreateSubsection(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var req CreateSubsectionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	domain, err := ic.Repo.FindDomain(ctx, uuid.MustParse(req.DomainID))
	if repository.IsNotFound(err) {
		return utils.BadRequest(c, "Domain not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not create subsection", err.Error())
	}

	s := &models.Subsection{DomainID: domain.ID, Code: strings.TrimSpace(req.Code), Title: req.Title}
	if err := ic.Repo.CreateSubsection(ctx, s); err != nil {
		return utils.InternalServerError(c, "Could not create subsection", err.Error())
	}
	ic.Cache.Invalidate(ctx)
	return utils.Created(c, s)
}

type CreateItemRequest struct {
	SubsectionID     string   `json:"subsection_id" validate:"required,uuid"`
	Code             string   `json:"code" validate:"required"`
	Title            string   `json:"title" validate:"required"`
	RequiresEvidence bool     `json:"requires_evidence"`
	EvidenceFiles    []string `json:"evidence_files" validate:"omitempty,dive,url"`
}

func (ic *InstrumentController) CreateItem(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var req CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}

	sub, err := ic.Repo.FindSubsection(ctx, uuid.MustParse(req.SubsectionID))
	if repository.IsNotFound(err) {
		return utils.BadRequest(c, "Subsection not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not create item", err.Error())
	}

	it := &models.Item{
		SubsectionID:     sub.ID,
		Code:             strings.TrimSpace(req.Code),
		Title:            req.Title,
		RequiresEvidence: req.RequiresEvidence,
		EvidenceFiles:    req.EvidenceFiles,
	}
	if err := ic.Repo.CreateItem(ctx, it); err != nil {
		return utils.InternalServerError(c, "Could not create item", err.Error())
	}
	ic.Cache.Invalidate(ctx)
	return utils.Created(c, it)
}

func (ic *InstrumentController) SetEvidenceFiles(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid item id")
	}
	var req struct {
		EvidenceFiles []string `json:"evidence_files" validate:"dive,url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}
	if req.EvidenceFiles == nil {
		req.EvidenceFiles = []string{}
	}

	it, err := ic.Repo.SetEvidenceFiles(ctx, id, req.EvidenceFiles)
	if repository.IsNotFound(err) {
		return utils.NotFound(c, "Item not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not update item", err.Error())
	}
	ic.Cache.Invalidate(ctx)
	return c.JSON(it)
}

func (ic *InstrumentController) DeleteDomain(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid domain id")
	}
	return ic.deleted(c, ic.Repo.DeleteDomain(c.UserContext(), id), "Domain not found")
}

func (ic *InstrumentController) DeleteSubsection(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid subsection id")
	}
	return ic.deleted(c, ic.Repo.DeleteSubsection(c.UserContext(), id), "Subsection not found")
}

func (ic *InstrumentController) DeleteItem(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return utils.BadRequest(c, "Invalid item id")
	}
	n, err := ic.Repo.DeleteItems(c.UserContext(), []uuid.UUID{id})
	if err == nil && n == 0 {
		return utils.NotFound(c, "Item not found")
	}
	return ic.deleted(c, err, "Item not found")
}

// BulkDeleteItems removes the listed items and their answers.
func (ic *InstrumentController) BulkDeleteItems(c *fiber.Ctx) error {
	var req struct {
		IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(&req); err != nil {
		return utils.ValidationError(c, validationDetails(err))
	}
	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		ids[i] = uuid.MustParse(raw)
	}

	n, err := ic.Repo.DeleteItems(c.UserContext(), ids)
	if err != nil {
		return ic.deleteFailed(c, err)
	}
	ic.Cache.Invalidate(c.UserContext())
	return c.JSON(fiber.Map{"deleted": n})
}

// DeleteAllItems clears every item of an instrument.
func (ic *InstrumentController) DeleteAllItems(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Query("instrument", ic.Cfg.DefaultInstrumentKey)
	inst, err := ic.Repo.FindByKey(ctx, key)
	if errors.Is(err, repository.ErrUnknownInstrument) {
		return utils.NotFound(c, "Instrument not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Could not delete items", err.Error())
	}

	n, err := ic.Repo.DeleteAllItems(ctx, inst.ID)
	if err != nil {
		return ic.deleteFailed(c, err)
	}
	ic.Cache.Invalidate(ctx)
	return c.JSON(fiber.Map{"deleted": n})
}

func (ic *InstrumentController) deleted(c *fiber.Ctx, err error, notFound string) error {
	if repository.IsNotFound(err) {
		return utils.NotFound(c, notFound)
	}
	if err != nil {
		return ic.deleteFailed(c, err)
	}
	ic.Cache.Invalidate(c.UserContext())
	return utils.NoContent(c)
}

func (ic *InstrumentController) deleteFailed(c *fiber.Ctx, err error) error {
	ic.Log.Error("delete failed", "path", c.Path(), "error", err)
	return utils.InternalServerError(c, utils.DescribeDeleteError(err), err.Error())
}
