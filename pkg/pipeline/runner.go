// Package pipeline drives the stages: checkpointed work loops, bounded
// retries for transient failures, and a shared semaphore that caps
// concurrent LLM calls across a stage.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/store"
)

// Runner carries the shared machinery every stage driver uses.
type Runner struct {
	cfg         config.RunnerConfig
	checkpoints *CheckpointManager
	llmSem      *semaphore.Weighted
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg config.RunnerConfig, checkpoints *CheckpointManager, logger *slog.Logger) *Runner {
	if checkpoints == nil {
		panic("NewRunner: checkpoint manager must not be nil")
	}
	if logger == nil {
		panic("NewRunner: logger must not be nil")
	}
	return &Runner{
		cfg:         cfg,
		checkpoints: checkpoints,
		llmSem:      semaphore.NewWeighted(cfg.LLMConcurrency),
		logger:      logger.With("component", "runner"),
	}
}

// Checkpoints exposes the checkpoint manager to stage drivers.
func (r *Runner) Checkpoints() *CheckpointManager { return r.checkpoints }

// Workers is the per-stage fan-out bound.
func (r *Runner) Workers() int {
	if r.cfg.WorkerCount < 1 {
		return 1
	}
	return r.cfg.WorkerCount
}

// WithLLM runs fn while holding one slot of the LLM semaphore.
func (r *Runner) WithLLM(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.llmSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.llmSem.Release(1)
	return fn(ctx)
}

// permanent reports whether an error is an invariant violation that a
// retry cannot fix. The checkpoint still advances past such items.
func permanent(err error) bool {
	return store.IsValidationError(err) ||
		errors.Is(err, store.ErrConflictingImmutableField) ||
		errors.Is(err, store.ErrVerdictAlreadySet) ||
		errors.Is(err, store.ErrAlreadyAssigned) ||
		errors.Is(err, store.ErrFrozen) ||
		errors.Is(err, store.ErrNotFound)
}

// Retry runs fn with exponential backoff, up to the configured attempt
// cap. Invariant violations are surfaced immediately without retrying.
func (r *Runner) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialBackoff

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.cfg.MaxRetries), ctx))
}
