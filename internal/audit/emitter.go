package audit

import (
	"context"
	"fmt"

	"github.com/withObsrvr/auction-ledger/internal/config"
	"github.com/withObsrvr/auction-ledger/internal/logging"
)

// Emitter records pipeline events.
type Emitter interface {
	Emit(ctx context.Context, eventType, runDir string, details any) error
	Close() error
}

// NewEmitter returns a file-backed emitter, or a no-op emitter when the
// audit log is disabled.
func NewEmitter(cfg config.AuditConfig) (Emitter, error) {
	log := logging.Component("audit")
	if !cfg.Enabled {
		log.Debug("audit disabled, using no-op emitter")
		return noopEmitter{}, nil
	}

	l, err := OpenLog(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", cfg.Path, err)
	}
	log.Info("audit log enabled", "path", cfg.Path, "head", l.Head())
	return &fileEmitter{log: l}, nil
}

type fileEmitter struct {
	log *Log
}

func (e *fileEmitter) Emit(ctx context.Context, eventType, runDir string, details any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.log.Append(eventType, runDir, details)
	return err
}

func (e *fileEmitter) Close() error {
	return nil
}

// noopEmitter discards all events.
type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, string, any) error {
	return nil
}

func (noopEmitter) Close() error {
	return nil
}
