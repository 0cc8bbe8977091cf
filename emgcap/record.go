package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/dsp"
	"github.com/itohio/emgcap/pkg/metadata"
	"github.com/itohio/emgcap/pkg/notify"
	"github.com/itohio/emgcap/pkg/pipeline"
	"github.com/itohio/emgcap/pkg/storage"
)

const progressInterval = 100 * time.Millisecond

type recordFlags struct {
	operator  string
	variation string
	label     string
	port      string
	replay    string
	mock      bool
	dryRun    bool
	timeout   time.Duration
	samples   int
}

func newRecordCmd(configPath *string) *cobra.Command {
	var f recordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture, filter and store one session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if f.port != "" {
				a.cfg.Serial.Port = f.port
			}
			if cmd.Flags().Changed("timeout") {
				a.cfg.Session.Timeout = f.timeout
			}
			if f.samples > 0 {
				a.cfg.Session.TargetSamples = f.samples
			}
			return runRecord(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a, f)
		},
	}

	cmd.Flags().StringVar(&f.operator, "operator", "", "Operator ID (see 'operator list')")
	cmd.Flags().StringVar(&f.variation, "variation", "", "Recording variation, number or name (default: operator's)")
	cmd.Flags().StringVar(&f.label, "label", "", "Free-text label, e.g. the spoken word")
	cmd.Flags().StringVarP(&f.port, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	cmd.Flags().StringVar(&f.replay, "replay", "", "Read frame lines from a file instead of a device")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "Use mocked device instead of serial port")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Capture and process without storing")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Abort the capture after this long (0 = no limit)")
	cmd.Flags().IntVar(&f.samples, "samples", 0, "Samples per channel (default from config)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func runRecord(ctx context.Context, out, progress io.Writer, a *app, f recordFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	engine, err := dsp.NewEngine(dsp.SpecFromConfig(a.cfg.Filter))
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	var store storage.Store
	if !f.dryRun {
		store, err = storage.Open(ctx, a.cfg.Storage, a.log)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()
	}

	variation, err := resolveVariation(ctx, store, f.operator, f.variation)
	if err != nil {
		return err
	}
	sess, err := metadata.NewSession(f.operator, variation, f.label)
	if err != nil {
		return err
	}

	printer := newProgressPrinter(progress, progressInterval)
	opts := pipeline.Options{
		TargetSamples: a.cfg.Session.TargetSamples,
		OnProgress:    printer.Update,
		DryRun:        f.dryRun,
		Log:           a.log,
	}
	if !f.dryRun && a.cfg.Storage.EDFDir != "" {
		archive, err := storage.NewArchive(a.cfg.Storage.EDFDir, int(a.cfg.Filter.SampleRate), a.log)
		if err != nil {
			return err
		}
		opts.Archive = archive
	}
	if !f.dryRun && a.cfg.MQTT.Enabled {
		notifier, err := notify.NewMQTT(a.cfg.MQTT, a.log)
		if err != nil {
			a.log.Warn("session notifications disabled", zap.Error(err))
		} else {
			defer notifier.Close()
			opts.Notifier = notifier
		}
	}

	if a.cfg.Session.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Session.Timeout)
		defer cancel()
	}

	dev := openDevice(a.cfg, f, a.log)
	a.log.Info("recording session",
		zap.String("session_id", sess.ID),
		zap.String("operator_id", sess.OperatorID),
		zap.Stringer("variation", sess.Variation),
		zap.Int("target", opts.TargetSamples))

	report, err := pipeline.New(engine, store, opts).Run(ctx, dev, sess)
	if err != nil {
		return err
	}
	printReport(out, report, a.cfg)
	return nil
}

// resolveVariation parses the --variation flag, falling back to the
// operator's registered variation. With a store the operator must exist.
func resolveVariation(ctx context.Context, store storage.Store, operatorID, flag string) (metadata.Variation, error) {
	if store != nil {
		ids, err := store.OperatorIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("list operators: %w", err)
		}
		if !slices.Contains(ids, operatorID) {
			return 0, fmt.Errorf("unknown operator %q, add one with 'operator add'", operatorID)
		}
	}

	if flag != "" {
		return metadata.ParseVariation(flag)
	}

	lookup, ok := store.(storage.OperatorLookup)
	if !ok {
		return 0, errors.New("--variation is required for this storage backend")
	}
	op, err := lookup.Operator(ctx, operatorID)
	if err != nil {
		return 0, err
	}
	return op.Variation, nil
}

func openDevice(cfg *config.Config, f recordFlags, log *zap.Logger) device.Device {
	switch {
	case f.replay != "":
		return device.NewFileStream(f.replay, log)
	case f.mock:
		return device.NewMock(&cfg.Mock)
	default:
		return device.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.SettleTime, log)
	}
}

func printReport(w io.Writer, r pipeline.Report, cfg *config.Config) {
	fmt.Fprintf(w, "session    %s\n", r.Session.ID)
	fmt.Fprintf(w, "operator   %s\n", r.Session.OperatorID)
	fmt.Fprintf(w, "variation  %d (%s)\n", int(r.Session.Variation), r.Session.Variation)
	if r.Session.Label != "" {
		fmt.Fprintf(w, "label      %s\n", r.Session.Label)
	}
	fmt.Fprintf(w, "samples    %d per channel, %d rejected lines, %s\n",
		r.Filtered.Len(), r.Filtered.Rejected, r.Filtered.Duration().Round(time.Millisecond))
	if !r.Stored {
		fmt.Fprintln(w, "stored     no (dry run)")
		return
	}
	fmt.Fprintf(w, "stored     %s\n", cfg.Storage.Backend)
	if r.ArchivePath != "" {
		fmt.Fprintf(w, "archive    %s\n", r.ArchivePath)
	}
}
