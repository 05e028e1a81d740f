package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/withObsrvr/auction-ledger/internal/archive"
	"github.com/withObsrvr/auction-ledger/internal/audit"
	"github.com/withObsrvr/auction-ledger/internal/checkpoint"
	"github.com/withObsrvr/auction-ledger/internal/config"
	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
	"github.com/withObsrvr/auction-ledger/internal/library"
	"github.com/withObsrvr/auction-ledger/internal/pipeline"
)

// stage selects which collaborators a command needs.
type stage int

const (
	stageCapture stage = iota
	stageIngest
	stageValidate
)

// session owns everything opened for one command.
type session struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// Close releases resources in reverse order of opening.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func libraryConfig(cfg config.Config) library.Config {
	return library.Config{
		Driver:        cfg.Library.Driver,
		StoreLocation: cfg.Library.StoreLocation,
		PostgresDSN:   cfg.Library.PostgresDSN,
	}
}

func openArchiver(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archiver, error) {
	bucket, err := archive.OpenBucket(ctx, cfg.BucketURL, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	a, err := archive.New(bucket)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return a, nil
}

// openSession builds a pipeline with the collaborators st needs.
func openSession(ctx context.Context, opts *RootOptions, st stage) (_ *session, err error) {
	cfg := opts.cfg
	s := &session{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	po := pipeline.Options{Metrics: opts.metrics}

	if st == stageCapture {
		po.Fetcher = fiscaldata.NewClient(fiscaldata.ClientConfig{
			Endpoint:          cfg.Capture.Endpoint,
			Timeout:           time.Duration(cfg.Capture.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.Capture.RequestsPerSecond,
		})
		if cfg.Archive.Enabled {
			a, err := openArchiver(ctx, cfg.Archive)
			if err != nil {
				return nil, err
			}
			s.closers = append(s.closers, a.Close)
			po.Archiver = a
		}
	}

	if st == stageIngest {
		idx, err := library.Open(ctx, libraryConfig(cfg))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, idx.Close)
		po.Index = idx
	}

	emitter, err := audit.NewEmitter(cfg.Audit)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, emitter.Close)
	po.Audit = emitter

	po.Checkpoint, err = checkpoint.NewManager(checkpoint.Config{Enabled: cfg.State.Enabled, Dir: cfg.State.Dir})
	if err != nil {
		return nil, err
	}

	s.pipeline, err = pipeline.New(cfg, po)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
