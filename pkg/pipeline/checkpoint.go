package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tessera-intel/tessera/pkg/models"
)

// Mirror receives a copy of every saved checkpoint. The on-disk file stays
// authoritative; mirror failures are logged and ignored.
type Mirror interface {
	Upsert(ctx context.Context, cp models.Checkpoint) error
}

// CheckpointManager owns the per-phase checkpoint files under a directory.
// Saves are atomic: write to a temp file in the same directory, then
// rename over the target.
type CheckpointManager struct {
	dir    string
	mirror Mirror
	logger *slog.Logger
}

// NewCheckpointManager creates the checkpoint directory if needed. mirror
// may be nil.
func NewCheckpointManager(dir string, mirror Mirror, logger *slog.Logger) (*CheckpointManager, error) {
	if logger == nil {
		panic("NewCheckpointManager: logger must not be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir %s: %w", dir, err)
	}
	return &CheckpointManager{dir: dir, mirror: mirror, logger: logger.With("component", "checkpoints")}, nil
}

func (m *CheckpointManager) path(phase string) string {
	return filepath.Join(m.dir, phase+".json")
}

// Load returns the checkpoint for a phase, or a zero checkpoint when no
// file exists.
func (m *CheckpointManager) Load(phase string) (models.Checkpoint, error) {
	data, err := os.ReadFile(m.path(phase))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Checkpoint{Phase: phase}, nil
		}
		return models.Checkpoint{}, fmt.Errorf("failed to read checkpoint for %s: %w", phase, err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return models.Checkpoint{}, fmt.Errorf("corrupt checkpoint file for %s: %w", phase, err)
	}
	cp.Phase = phase
	return cp, nil
}

// Save atomically persists the checkpoint and mirrors it best-effort.
func (m *CheckpointManager) Save(ctx context.Context, cp models.Checkpoint) error {
	cp.LastRunAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint for %s: %w", cp.Phase, err)
	}

	tmp, err := os.CreateTemp(m.dir, cp.Phase+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint for %s: %w", cp.Phase, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.path(cp.Phase)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint for %s: %w", cp.Phase, err)
	}

	if m.mirror != nil {
		if err := m.mirror.Upsert(ctx, cp); err != nil {
			m.logger.WarnContext(ctx, "checkpoint mirror failed", "phase", cp.Phase, "error", err)
		}
	}
	return nil
}

// Clear removes the checkpoint file after a successful full drain.
func (m *CheckpointManager) Clear(phase string) error {
	err := os.Remove(m.path(phase))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear checkpoint for %s: %w", phase, err)
	}
	return nil
}
