// The tessera server: runs the HTTP API and the periodic pipeline phases
// in one process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-intel/tessera/pkg/api"
	"github.com/tessera-intel/tessera/pkg/app"
	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/pipeline"
)

// phaseInterval is how often the full phase cycle runs.
const phaseInterval = 15 * time.Minute

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close(context.Background())

	server := api.NewServer(cfg.API, application.DB.Pool(), application.Titles,
		application.EFs, application.CTMs, application.Narratives,
		application.Extractor, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return runPhaseLoop(gctx, application, logger)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// runPhaseLoop cycles through every phase on a fixed interval. A failed
// phase is logged; the loop keeps going.
func runPhaseLoop(ctx context.Context, application *app.App, logger *slog.Logger) error {
	ticker := time.NewTicker(phaseInterval)
	defer ticker.Stop()

	for {
		for _, phase := range pipeline.Phases {
			if err := ctx.Err(); err != nil {
				return nil
			}
			start := time.Now()
			err := application.Stages.RunPhase(ctx, phase, pipeline.RunOptions{Resume: true})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("phase failed", "phase", phase, "error", err)
				continue
			}
			logger.Info("phase complete", "phase", phase, "duration", time.Since(start))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
