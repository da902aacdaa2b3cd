package controllers

import (
	"bytes"
	"strings"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/export"
	"evalsurvey/backend/metrics"
	"evalsurvey/backend/repository"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExportController struct {
	Loader   *export.Loader
	Cfg      *config.Config
	Log      *utils.Logger
	Metrics  *metrics.Metrics
	Location *time.Location
	now      func() time.Time
}

func NewExportController(db *gorm.DB, cfg *config.Config, log *utils.Logger, m *metrics.Metrics) *ExportController {
	return &ExportController{
		Loader:   export.NewLoader(repository.NewEvaluationRepository(db)),
		Cfg:      cfg,
		Log:      log.With("controller", "export"),
		Metrics:  m,
		Location: time.Local,
		now:      time.Now,
	}
}

// ExportXLSX godoc
// @Summary Export answers as a spreadsheet
// @Description Workbook with a detailed "Respuestas" sheet and a per-evaluation "Resumen" sheet
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param ids query string false "Comma-separated evaluation ids; all when absent"
// @Success 200 {file} file
// @Failure 400 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/export [get]
func (ec *ExportController) ExportXLSX(c *fiber.Ctx) error {
	ids, ok := parseIDs(c.Query("ids"))
	if !ok {
		return utils.BadRequest(c, "Invalid evaluation ids")
	}
	ds, err := ec.Loader.Load(c.UserContext(), ids)
	if err != nil {
		return ec.loadFailed(c, err)
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.Rows(ds, ec.Location), export.Summaries(ds, ec.Location)); err != nil {
		ec.Log.Error("xlsx export failed", "error", err)
		return utils.InternalServerError(c, "Could not generate the spreadsheet", err.Error())
	}
	ec.Metrics.Export("xlsx")
	return ec.send(c, buf.Bytes(), export.ContentTypeXLSX, "xlsx")
}

// ExportCSV godoc
// @Summary Export answers as CSV
// @Tags export
// @Produce text/csv
// @Param ids query string false "Comma-separated evaluation ids; all when absent"
// @Success 200 {file} file
// @Security ApiKeyAuth
// @Router /admin/export/csv [get]
func (ec *ExportController) ExportCSV(c *fiber.Ctx) error {
	ids, ok := parseIDs(c.Query("ids"))
	if !ok {
		return utils.BadRequest(c, "Invalid evaluation ids")
	}
	ds, err := ec.Loader.Load(c.UserContext(), ids)
	if err != nil {
		return ec.loadFailed(c, err)
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.Rows(ds, ec.Location)); err != nil {
		ec.Log.Error("csv export failed", "error", err)
		return utils.InternalServerError(c, "Could not generate the CSV file", err.Error())
	}
	ec.Metrics.Export("csv")
	return ec.send(c, buf.Bytes(), export.ContentTypeCSV, "csv")
}

func (ec *ExportController) loadFailed(c *fiber.Ctx, err error) error {
	ec.Log.Error("export load failed", "error", err)
	return utils.InternalServerError(c, "Could not load evaluations", err.Error())
}

func (ec *ExportController) send(c *fiber.Ctx, body []byte, contentType, ext string) error {
	name := export.FileName(ec.now(), ext)
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(body)
}

func parseIDs(raw string) ([]uuid.UUID, bool) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
