package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/emgcap/pkg/acquisition"
	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/dsp"
	"github.com/itohio/emgcap/pkg/export"
	"github.com/itohio/emgcap/pkg/logger"
	"github.com/itohio/emgcap/pkg/metadata"
	"github.com/itohio/emgcap/pkg/notify"
	"github.com/itohio/emgcap/pkg/storage"
)

// Stage names a step of the session pipeline.
type Stage string

const (
	StageAcquisition Stage = "acquisition"
	StageFiltering   Stage = "filtering"
	StageExport      Stage = "export"
	StageStorage     Stage = "storage"
)

// StageError reports which stage a session failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Filtered is a capture result with its filtered and normalized buffers.
type Filtered struct {
	acquisition.Result
	Clean      [device.NumChannels][]float64 // Output of the filter chain
	Normalized [device.NumChannels][]float64
}

// Archiver keeps a copy of the raw session outside the store.
type Archiver interface {
	Write(sess metadata.Session, raw [device.NumChannels][]float64) (string, error)
}

// Options configures a Pipeline. Zero values disable the optional parts.
type Options struct {
	TargetSamples int
	Archive       Archiver
	Notifier      notify.Notifier
	OnProgress    func(n, target int)
	DryRun        bool // Capture, filter and export only
	Log           *zap.Logger
}

// Report is the outcome of a successful Run.
type Report struct {
	Session     metadata.Session
	Filtered    Filtered
	Raw         export.Row
	Normalized  export.Row
	ArchivePath string
	Stored      bool
}

// Pipeline runs one session at a time: capture, filter, export, store.
type Pipeline struct {
	engine *dsp.Engine
	store  storage.SessionWriter
	opts   Options
	log    *zap.Logger
}

// New creates a pipeline writing to store.
func New(engine *dsp.Engine, store storage.SessionWriter, opts Options) *Pipeline {
	log := logger.OrNop(opts.Log)
	if opts.TargetSamples <= 0 {
		opts.TargetSamples = 750
	}
	return &Pipeline{engine: engine, store: store, opts: opts, log: log}
}

// Capture acquires TargetSamples frames from dev for sess.
func (p *Pipeline) Capture(ctx context.Context, dev device.Device, sess metadata.Session) (acquisition.Result, error) {
	s := acquisition.NewSession(p.log.With(zap.String("session_id", sess.ID)))
	if p.opts.OnProgress != nil {
		s.OnProgress(p.opts.OnProgress)
	}
	return s.Capture(ctx, dev, p.opts.TargetSamples, sess.Label)
}

// FilterAll filters and normalizes every channel of res in parallel. If
// several channels fail, the error of the first one in channel order is
// returned.
func FilterAll(ctx context.Context, engine *dsp.Engine, res acquisition.Result) (Filtered, error) {
	out := Filtered{Result: res}
	var errs [device.NumChannels]error

	var g errgroup.Group
	for _, ch := range device.Channels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clean := engine.Chain(res.Raw[ch])
			norm, err := dsp.Normalize(clean)
			if err != nil {
				errs[ch] = fmt.Errorf("channel %s: %w", ch, err)
				return nil
			}
			out.Clean[ch] = clean
			out.Normalized[ch] = norm
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Filtered{}, err
	}
	for _, err := range errs {
		if err != nil {
			return Filtered{}, err
		}
	}
	return out, nil
}

// Export assembles the raw and normalized rows of f.
func Export(f Filtered, sess metadata.Session) (export.Row, export.Row, error) {
	return export.Assemble(sess, f.Raw, f.Normalized)
}

// Run executes a complete session. Nothing is stored unless every stage
// before storage succeeded. A failed notification is logged only.
func (p *Pipeline) Run(ctx context.Context, dev device.Device, sess metadata.Session) (Report, error) {
	log := p.log.With(zap.String("session_id", sess.ID), zap.String("operator_id", sess.OperatorID))

	res, err := p.Capture(ctx, dev, sess)
	if err != nil {
		return Report{}, stageErr(StageAcquisition, err)
	}

	filtered, err := FilterAll(ctx, p.engine, res)
	if err != nil {
		return Report{}, stageErr(StageFiltering, err)
	}

	raw, norm, err := Export(filtered, sess)
	if err != nil {
		return Report{}, stageErr(StageExport, err)
	}

	report := Report{Session: sess, Filtered: filtered, Raw: raw, Normalized: norm}
	if p.opts.DryRun {
		log.Info("dry run, session not stored")
		return report, nil
	}

	if p.opts.Archive != nil {
		path, err := p.opts.Archive.Write(sess, res.Raw)
		if err != nil {
			return Report{}, stageErr(StageStorage, fmt.Errorf("archive: %w", err))
		}
		report.ArchivePath = path
	}

	if err := p.store.WriteSession(ctx, raw, norm); err != nil {
		if report.ArchivePath != "" {
			if rerr := os.Remove(report.ArchivePath); rerr != nil {
				log.Warn("failed to remove archive", zap.String("path", report.ArchivePath), zap.Error(rerr))
			}
		}
		return Report{}, stageErr(StageStorage, err)
	}
	report.Stored = true
	log.Info("session stored", zap.Int("values", raw.Len()), zap.String("archive", report.ArchivePath))

	if p.opts.Notifier != nil {
		if err := p.opts.Notifier.Notify(ctx, p.summary(report)); err != nil {
			log.Warn("failed to publish session summary", zap.Error(err))
		}
	}

	return report, nil
}

func (p *Pipeline) summary(r Report) notify.Summary {
	return notify.Summary{
		SessionID:     r.Session.ID,
		OperatorID:    r.Session.OperatorID,
		Variation:     int(r.Session.Variation),
		VariationName: r.Session.Variation.String(),
		Label:         r.Session.Label,
		Samples:       r.Filtered.Len(),
		Rejected:      r.Filtered.Rejected,
		DurationMS:    r.Filtered.Duration().Milliseconds(),
		StartedAt:     r.Filtered.Start,
		ArchivePath:   r.ArchivePath,
	}
}
