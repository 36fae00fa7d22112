package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rishigupta87/open-ta/internal/usecase"
	pkgch "github.com/rishigupta87/open-ta/pkg/clickhouse"
	"github.com/rishigupta87/open-ta/pkg/config"
	xhttp "github.com/rishigupta87/open-ta/pkg/http"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
	"github.com/rishigupta87/open-ta/pkg/queue"
)

// App encapsulates the entire application lifecycle: the signal engine,
// the control API, and the shared infrastructure clients.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	ctrl       *usecase.EngineController
	httpServer *xhttp.Server
	emitQ      *queue.Memory
	chClient   *pkgch.Client
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	ctrl *usecase.EngineController,
	httpServer *xhttp.Server,
	emitQ *queue.Memory,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		ctrl:       ctrl,
		httpServer: httpServer,
		emitQ:      emitQ,
		chClient:   chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("control api started", applogger.Int("port", a.cfg.Server.Port))

	if a.cfg.Engine.AutoStart {
		// A failed autostart leaves the engine STOPPED but keeps the
		// control API up so an operator can retry via POST /api/engine/start.
		if _, err := a.ctrl.Start(ctx); err != nil {
			a.log.Error("engine autostart failed", applogger.Error(err))
		} else {
			a.log.Info("engine started",
				applogger.Strings("underlyings", a.cfg.Engine.Underlyings))
		}
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the engine first so no new sink writes are produced.
	if _, err := a.ctrl.Stop(shutdownCtx); err != nil {
		a.log.Warn("engine stop error", applogger.Error(err))
	}

	// Drain queued sink writes before infrastructure clients close.
	if err := a.emitQ.Stop(shutdownCtx); err != nil {
		a.log.Warn("emit queue stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
