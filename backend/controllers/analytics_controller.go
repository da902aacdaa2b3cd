package controllers

import (
	"errors"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/repository"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const dayLayout = "2006-01-02"

type AnalyticsController struct {
	Analytics   *repository.AnalyticsRepository
	Instruments *repository.InstrumentRepository
	Cfg         *config.Config
	Location    *time.Location
	now         func() time.Time
}

func NewAnalyticsController(db *gorm.DB, cfg *config.Config) *AnalyticsController {
	return &AnalyticsController{
		Analytics:   repository.NewAnalyticsRepository(db),
		Instruments: repository.NewInstrumentRepository(db),
		Cfg:         cfg,
		Location:    time.Local,
		now:         time.Now,
	}
}

// GetOverview godoc
// @Summary Submission analytics
// @Description Totals, submissions per day and pooled per-domain compliance for a period (last 30 days by default)
// @Tags analytics
// @Produce json
// @Param instrument query string false "Instrument key"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD, inclusive"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/analytics [get]
func (ac *AnalyticsController) GetOverview(c *fiber.Ctx) error {
	ctx := c.UserContext()
	now := ac.now().In(ac.Location)

	// Defaults to the last 30 days including today.
	start := now.AddDate(0, 0, -29)
	end := now
	var err error
	if s := c.Query("start_date"); s != "" {
		if start, err = time.ParseInLocation(dayLayout, s, ac.Location); err != nil {
			return utils.BadRequest(c, "Invalid start_date format. Use YYYY-MM-DD")
		}
	}
	if s := c.Query("end_date"); s != "" {
		if end, err = time.ParseInLocation(dayLayout, s, ac.Location); err != nil {
			return utils.BadRequest(c, "Invalid end_date format. Use YYYY-MM-DD")
		}
	}
	start = startOfDay(start)
	end = startOfDay(end)
	if end.Before(start) {
		return utils.BadRequest(c, "end_date is before start_date")
	}
	period := repository.Period{From: start, To: end.AddDate(0, 0, 1)}

	inst, err := ac.Instruments.FindByKey(ctx, c.Query("instrument", ac.Cfg.DefaultInstrumentKey))
	if errors.Is(err, repository.ErrUnknownInstrument) {
		return utils.NotFound(c, "Instrument not found")
	}
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch instrument", err.Error())
	}

	totals, err := ac.Analytics.Totals(ctx, inst.ID, period)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch totals", err.Error())
	}
	daily, err := ac.Analytics.Daily(ctx, inst.ID, period, ac.Location)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch submissions", err.Error())
	}
	domains, err := ac.Analytics.DomainAverages(ctx, inst.ID, period)
	if err != nil {
		return utils.InternalServerError(c, "Failed to fetch domain scores", err.Error())
	}

	return c.JSON(fiber.Map{
		"instrument": inst.Key,
		"period": fiber.Map{
			"start_date": start.Format(dayLayout),
			"end_date":   end.Format(dayLayout),
		},
		"totals":    totals,
		"daily":     daily,
		"domains":   domains,
		"timestamp": ac.now().UTC().Format(time.RFC3339),
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
