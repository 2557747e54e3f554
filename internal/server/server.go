package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knowledgebase/netgraph/internal/db"
	"github.com/knowledgebase/netgraph/internal/queue"
	mid "github.com/knowledgebase/netgraph/internal/server/middleware"
	"github.com/knowledgebase/netgraph/internal/source"
	"github.com/knowledgebase/netgraph/internal/storage"
	"github.com/knowledgebase/netgraph/internal/util"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/store"
	"github.com/knowledgebase/netgraph/pkg/viewer"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEcho builds the HTTP server around app.
func NewEcho(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if dbURL := util.GetEnv("DATABASE_URL"); dbURL != "" {
		if err := db.Migrate(util.GetEnvString("MIGRATIONS_PATH", "./migrations"), dbURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
		var err error
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer pool.Close()
	}

	cfg := source.ConfigFromEnv()
	src, closeSource, err := source.Open(ctx, cfg, source.Deps{Pool: pool})
	if err != nil {
		logger.Fatal("Failed to open dataset source", "err", err)
	}
	defer closeSource()

	holder := store.NewHolder(src)
	err = util.RetryErrWithContext(ctx, util.RetryOptions{MaxTries: 5, Delay: time.Second, MaxDelay: 10 * time.Second}, holder.Reload)
	if err != nil {
		logger.Fatal("Failed to load dataset", "err", err)
	}

	sessions := viewer.NewManager(ctx, holder, viewer.Options{
		Width:         util.GetEnvNumeric("CANVAS_WIDTH", 960),
		Height:        util.GetEnvNumeric("CANVAS_HEIGHT", 640),
		FrameInterval: util.GetEnvDuration("FRAME_INTERVAL", 16*time.Millisecond),
		IdleTimeout:   util.GetEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
	})
	defer sessions.CloseAll()
	go sessions.RunReaper(ctx, time.Minute)

	app := &mid.App{Sessions: sessions, Data: holder}

	if storage.Enabled() {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		app.S3 = client
		app.Bucket = storage.Bucket()
	}

	if queue.Enabled() {
		que, err := queue.Init()
		if err != nil {
			logger.Fatal("Failed to connect to queue", "err", err)
		}
		defer que.Close()

		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		app.Enqueue = func(name string, data []byte) error {
			return queue.PublishFIFO(ch, name, data)
		}

		subCh, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open subscriber channel", "err", err)
		}
		deliveries, err := queue.SubscribeTopic(subCh, queue.TopicDatasetImported)
		if err != nil {
			logger.Fatal("Failed to subscribe to imports", "err", err)
		}
		go ReloadOnImport(ctx, deliveries, cfg.Dataset, holder)
	}

	e := NewEcho(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
