package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint records pipeline progress for one run label.
type Checkpoint struct {
	Label           string    `json:"label"`
	LastCaptureRun  string    `json:"last_capture_run,omitempty"`
	LastCaptureEnd  string    `json:"last_capture_end,omitempty"`
	LastIngestedRun string    `json:"last_ingested_run,omitempty"`
	HistoryRows     int       `json:"history_total_rows,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the checkpoint for a label.
	Load(ctx context.Context, label string) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager persists checkpoints to local files.
type fileManager struct {
	dir string
}

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// checkpointPath returns the checkpoint file for a label.
func (m *fileManager) checkpointPath(label string) string {
	filename := fmt.Sprintf("checkpoint_%s.json", unsafeLabelChars.ReplaceAllString(label, "_"))
	return filepath.Join(m.dir, filename)
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context, label string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath(label))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}

	return &cp, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	path := m.checkpointPath(cp.Label)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tempPath := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// Update loads the checkpoint for label (or starts a fresh one), applies fn
// and saves the result.
func Update(ctx context.Context, m Manager, label string, now time.Time, fn func(*Checkpoint)) error {
	cp, err := m.Load(ctx, label)
	switch {
	case errors.Is(err, ErrNoCheckpoint):
		cp = &Checkpoint{Label: label}
	case err != nil:
		return err
	}

	fn(cp)
	cp.UpdatedAt = now.UTC()
	return m.Save(ctx, cp)
}

// noopManager is a no-op checkpoint manager for when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, label string) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
