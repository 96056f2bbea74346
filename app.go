package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog/internal/config"
	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/middleware"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/storage"
	"catalog/internal/validation"
	"catalog/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App is the wired HTTP application and the resources it owns.
type App struct {
	Fiber *fiber.App
	DB    *gorm.DB
	MQ    *rabbitmq.Client
	Log   *logrus.Logger
}

// NewApp builds the application from cfg: database, blob storage, optional
// event publisher, services and routes. Connections opened before a failing
// step are closed again.
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Log: newLogger(cfg.App)}
	if err := app.init(cfg); err != nil {
		if cerr := app.Close(); cerr != nil {
			app.Log.WithError(cerr).Warn("failed to release resources after init error")
		}
		return nil, err
	}
	return app, nil
}

func (a *App) init(cfg *config.Config) error {
	log := a.Log

	db, err := database.Open(cfg.DB, cfg.App.Env == "development")
	if err != nil {
		return err
	}
	a.DB = db

	categoryRepo := repositories.NewGORMCategoryRepository(db)
	if err := seedCategories(context.Background(), categoryRepo, cfg.Catalog.SeedCategories, log); err != nil {
		return err
	}

	store, err := newStorage(context.Background(), cfg.Storage)
	if err != nil {
		return err
	}

	// Events are optional; a nil publisher disables them.
	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, log)
		if err != nil {
			return err
		}
		a.MQ = mq
		publisher = mq
	}

	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	rules := validation.NewProductRules(productRepo, categoryRepo, cfg.Catalog.MaxImageKB)
	productService := services.NewProductService(productRepo, rules, store, publisher, log, cfg.Catalog.PerPage)
	authService := services.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL, log)

	productHandler := handlers.NewProductHandler(productService, log)
	authHandler := handlers.NewAuthHandler(authService, log)

	a.Fiber = fiber.New(fiber.Config{
		AppName:      "catalog",
		BodyLimit:    int(cfg.Catalog.MaxImageKB*1024) + 1<<20,
		ErrorHandler: errorHandler(log),
	})
	a.Fiber.Use(recover.New())
	a.Fiber.Use(logger.New())

	apiV1 := a.Fiber.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)
	productHandler.RegisterRoutes(apiV1, middleware.AuthRequired(authService, log))

	a.Fiber.Get("/health", func(c *fiber.Ctx) error {
		status := "disabled"
		if a.MQ != nil {
			status = "connected"
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"rabbitmq": status,
		})
	})

	return nil
}

// Close releases the database and RabbitMQ connections.
func (a *App) Close() error {
	var errs []error
	if a.MQ != nil {
		if err := a.MQ.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.AppConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == "s3" {
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3Storage(client, cfg.Bucket), nil
	}
	return storage.NewLocalStorage(cfg.Root)
}

// seedCategories creates the configured categories when the table is empty.
func seedCategories(ctx context.Context, repo repositories.CategoryRepository, names []string, log *logrus.Logger) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, name := range names {
		category := &models.Category{Name: name}
		if err := repo.Create(ctx, category); err != nil {
			return fmt.Errorf("failed to seed category %q: %w", name, err)
		}
		log.WithFields(logrus.Fields{"category_id": category.ID, "name": name}).Info("seeded category")
	}
	return nil
}

func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Path()).Error("unhandled request error")
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
