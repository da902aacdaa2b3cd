package routes

import (
	"time"

	"evalsurvey/backend/cache"
	"evalsurvey/backend/config"
	"evalsurvey/backend/controllers"
	"evalsurvey/backend/metrics"
	"evalsurvey/backend/middleware"
	"evalsurvey/backend/storage"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type Dependencies struct {
	DB        *gorm.DB
	Cfg       *config.Config
	Log       *utils.Logger
	TreeCache *cache.TreeCache
	Store     storage.FileStore
	Metrics   *metrics.Metrics
}

func SetupRoutes(app *fiber.App, d Dependencies) {
	cfg := d.Cfg

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return utils.Error(c, fiber.StatusServiceUnavailable, "database unavailable", err.Error())
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", d.Metrics.Handler())

	// One limiter per route group; SUBMIT_RATE_LIMIT <= 0 disables them.
	rateLimit := func() fiber.Handler {
		return limiter.New(limiter.Config{
			Next:       func(*fiber.Ctx) bool { return cfg.SubmitRateLimit <= 0 },
			Max:        cfg.SubmitRateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return utils.Error(c, fiber.StatusTooManyRequests, "Too many requests")
			},
		})
	}
	authLimit := rateLimit()

	// Auth routes
	authController := controllers.NewAuthController(d.DB, cfg)
	app.Post("/api/auth/register", authLimit, authController.Register)
	app.Post("/api/auth/login", authLimit, authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)
	adminMiddleware := middleware.AdminMiddleware()

	// User routes
	userController := controllers.NewUserController(d.DB, cfg)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)

	// Submission
	submissionController := controllers.NewSubmissionController(d.DB, cfg, d.Log, d.Metrics)
	app.Post("/api/submit", authMiddleware, rateLimit(), submissionController.Submit)

	// Instrument tree
	instrumentController := controllers.NewInstrumentController(d.DB, cfg, d.TreeCache, d.Log)
	app.Get("/api/instruments/:key/tree", authMiddleware, instrumentController.GetTree)

	admin := app.Group("/api/admin", authMiddleware, adminMiddleware)

	admin.Post("/instruments", instrumentController.CreateInstrument)
	admin.Post("/domains", instrumentController.CreateDomain)
	admin.Delete("/domains/:id", instrumentController.DeleteDomain)
	admin.Post("/subsections", instrumentController.CreateSubsection)
	admin.Delete("/subsections/:id", instrumentController.DeleteSubsection)
	admin.Post("/items", instrumentController.CreateItem)
	admin.Post("/items/bulk-delete", instrumentController.BulkDeleteItems)
	admin.Put("/items/:id/evidence-files", instrumentController.SetEvidenceFiles)
	admin.Delete("/items/:id", instrumentController.DeleteItem)
	admin.Delete("/items", instrumentController.DeleteAllItems)

	// Evaluations
	evaluationsController := controllers.NewEvaluationsController(d.DB, cfg)
	admin.Get("/evaluations", evaluationsController.ListEvaluations)
	admin.Get("/evaluations/:id", evaluationsController.GetEvaluation)
	admin.Get("/evaluations/:id/score", evaluationsController.GetScore)
	admin.Delete("/evaluations/:id", evaluationsController.DeleteEvaluation)
	admin.Patch("/answers/:id", evaluationsController.UpdateAnswer)

	// Analytics
	analyticsController := controllers.NewAnalyticsController(d.DB, cfg)
	admin.Get("/analytics", analyticsController.GetOverview)

	// Export
	exportController := controllers.NewExportController(d.DB, cfg, d.Log, d.Metrics)
	admin.Get("/export", exportController.ExportXLSX)
	admin.Get("/export/csv", exportController.ExportCSV)

	// Evidence files
	filesController := controllers.NewFilesController(d.DB, cfg, d.Store, d.Log)
	admin.Post("/files", filesController.UploadFiles)
	admin.Get("/files", filesController.ListFiles)
	admin.Delete("/files/:id", filesController.DeleteFile)
}
