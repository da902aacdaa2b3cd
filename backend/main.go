package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"evalsurvey/backend/cache"
	"evalsurvey/backend/config"
	"evalsurvey/backend/metrics"
	"evalsurvey/backend/middleware"
	"evalsurvey/backend/routes"
	"evalsurvey/backend/seed"
	"evalsurvey/backend/storage"
	"evalsurvey/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

func main() {
	seedDefault := flag.Bool("seed", false, "insert the bundled instrument definition and exit")
	seedFile := flag.String("seed-file", "", "insert the instrument defined in this YAML file and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()
	if !cfg.EnvFileLoaded {
		logger.Info("no .env file found, using process environment")
	}

	// Initialize database
	db, err := utils.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Error initializing database", "error", err)
	}

	if *seedDefault || *seedFile != "" {
		runSeed(db, logger, *seedFile)
		return
	}

	ctx := context.Background()
	treeCache := cache.NewTreeCache(newTreeStore(cfg, logger), logger)
	store := newFileStore(ctx, cfg, logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             50 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return utils.Error(c, code, err.Error())
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.LoggingMiddleware(logger))
	app.Use(m.Middleware())

	// Setup routes
	routes.SetupRoutes(app, routes.Dependencies{
		DB:        db,
		Cfg:       cfg,
		Log:       logger,
		TreeCache: treeCache,
		Store:     store,
		Metrics:   m,
	})

	go func() {
		logger.Info("listening", "port", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logger.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Redis when configured, otherwise process memory.
func newTreeStore(cfg *config.Config, logger *utils.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryStore(cfg.TreeCacheTTL)
	}
	rs, err := cache.NewRedisStore(cfg)
	if err != nil {
		logger.Warn("redis unavailable, caching in memory", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemoryStore(cfg.TreeCacheTTL)
	}
	return rs
}

func newFileStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) storage.FileStore {
	gcs, err := storage.NewGCSStore(ctx, cfg, logger)
	if err != nil {
		logger.Warn("cloud storage unavailable, keeping uploads in memory", "error", err)
		return storage.NewMemoryStore("http://localhost:" + cfg.ServerPort + "/files")
	}
	return gcs
}

func runSeed(db *gorm.DB, logger *utils.Logger, path string) {
	var (
		f   *seed.File
		err error
	)
	if strings.TrimSpace(path) != "" {
		f, err = seed.LoadFile(path)
	} else {
		f, err = seed.Default()
	}
	if err != nil {
		logger.Fatal("seed", "error", err)
	}

	inst, err := seed.Apply(context.Background(), db, f)
	if errors.Is(err, seed.ErrAlreadySeeded) {
		logger.Info("instrument already present, nothing to do", "key", f.Key)
		return
	}
	if err != nil {
		logger.Fatal("seed", "error", err)
	}
	logger.Info("instrument seeded", "key", inst.Key, "domains", len(inst.Domains))
}
