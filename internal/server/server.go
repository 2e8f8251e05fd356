// Package server exposes retrieval over HTTP.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"patchsage/internal/util"
	"patchsage/pkg/ai"
	"patchsage/pkg/linker"
	"patchsage/pkg/logger"
	"patchsage/pkg/query"
	storepgx "patchsage/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// Init runs migrations, connects the store and serves until SIGINT or
// SIGTERM.
func Init() {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := storepgx.RunMigrations(databaseURL, util.GetEnvString("MIGRATIONS_PATH", "migrations")); err != nil {
		logger.Fatal("failed to apply migrations", "err", err)
	}

	st, err := storepgx.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "err", err)
	}
	defer st.Close()

	generator, err := ai.FromEnv()
	if err != nil {
		logger.Fatal("failed to configure AI adapter", "err", err)
	}

	linkOpts := linker.Options{
		FuzzyThreshold: util.GetEnvNumeric("FUZZY_THRESHOLD", 0),
		DisableFuzzy:   util.GetEnvBool("DISABLE_FUZZY", false),
	}

	app := &App{
		Store:     st,
		Router:    query.NewRouter(st, linkOpts),
		Generator: generator,
	}

	e.Use(AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "err", err)
	}
}
