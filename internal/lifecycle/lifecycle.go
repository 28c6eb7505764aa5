// Package lifecycle wires C1-C8 together, exposes the admin/health HTTP
// surface, and orchestrates startup and graceful shutdown (SPEC_FULL.md
// §4.9).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cattackle-hq/cattackle-core/internal/accumulator"
	"github.com/cattackle-hq/cattackle-core/internal/chatlog"
	"github.com/cattackle-hq/cattackle-core/internal/config"
	"github.com/cattackle-hq/cattackle-core/internal/offset"
	"github.com/cattackle-hq/cattackle-core/internal/platform"
	"github.com/cattackle-hq/cattackle-core/internal/poller"
	"github.com/cattackle-hq/cattackle-core/internal/registry"
	"github.com/cattackle-hq/cattackle-core/internal/router"
	"github.com/cattackle-hq/cattackle-core/internal/session"
)

const (
	telegramAPIBase  = "https://api.telegram.org"
	httpReadTimeout  = 10 * time.Second
	httpWriteTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// App holds every component the lifecycle wires together.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	platform *platform.Client
	registry *registry.Registry
	sessions *session.Manager
	poller   *poller.Poller
	server   *http.Server
}

// New constructs every component from cfg but does not start anything.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	plat := platform.New(telegramAPIBase, cfg.TelegramBotToken, log)
	reg := registry.New(cfg.CattacklesDir, log)

	if _, err := reg.Scan(context.Background()); err != nil {
		return nil, fmt.Errorf("initial plugin scan failed: %w", err)
	}

	sessions := session.NewManager(reg, log)

	acc := accumulator.New(cfg.MaxMessagesPerChat, cfg.MaxMessageLength)
	accManager := accumulator.NewManager(acc, cfg.FeedbackEnabled)

	var chatLog *chatlog.Logger
	if cfg.ChatLogDir != "" {
		chatLog = chatlog.New(cfg.ChatLogDir, log)
	}

	r := router.New(reg, sessions, accManager, chatLogOrNil(chatLog), log)
	p := poller.New(plat, r, offset.New(cfg.UpdateIDFilePath), log)

	app := &App{
		cfg:      cfg,
		log:      log,
		platform: plat,
		registry: reg,
		sessions: sessions,
		poller:   p,
	}

	app.server = app.newAdminServer()

	return app, nil
}

// chatLogOrNil returns a nil router.ChatLogger interface value when logger
// is a nil *chatlog.Logger, avoiding the classic non-nil-interface-wrapping-
// nil-pointer trap.
func chatLogOrNil(logger *chatlog.Logger) router.ChatLogger {
	if logger == nil {
		return nil
	}

	return logger
}

// Run starts the admin HTTP surface and blocks running the poller's main
// loop until ctx is canceled, then shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)

	go func() {
		a.log.Info("admin/health surface listening", "addr", a.cfg.AdminAddr)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	pollErr := make(chan error, 1)

	go func() {
		pollErr <- a.poller.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		a.log.Error("admin server failed", "err", err)
	case err := <-pollErr:
		if err != nil {
			a.log.Error("poller exited with error", "err", err)
		}
	}

	a.shutdown()

	return nil
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("admin server shutdown error", "err", err)
	}

	a.sessions.CloseAll(shutdownCtx)
	a.platform.Close()
}

func (a *App) newAdminServer() *http.Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.POST("/admin/reload", func(c *gin.Context) {
		found, err := a.registry.Scan(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})

			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "reloaded", "found": found})
	})

	engine.GET("/cattackles", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.registry.All())
	})

	return &http.Server{
		Addr:         a.cfg.AdminAddr,
		Handler:      engine,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
	}
}
