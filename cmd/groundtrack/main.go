// Command groundtrack computes satellite ground tracks offline: one pass for a
// single TLE as GeoJSON or SVG, or one pass per satellite of a catalog.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	cli "github.com/jawher/mow.cli"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yonda-yonda/tle-with-mapbox/internal/groundtrack"
	"github.com/yonda-yonda/tle-with-mapbox/internal/observability"
	"github.com/yonda-yonda/tle-with-mapbox/internal/propagation"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	app := cli.App("groundtrack", "Compute satellite ground tracks split at the anti-meridian")
	app.Spec = "[--trace]"
	trace := app.BoolOpt("trace", false, "export tracing spans to stderr")

	var shutdownTracing func(context.Context) error
	app.Before = func() {
		var err error
		shutdownTracing, err = observability.InitTracing(context.Background(), observability.TracingConfig{
			Enabled:     *trace,
			ServiceName: "groundtrack",
			Exporter:    "stdout",
			SampleRatio: 1,
			Writer:      os.Stderr,
		}, logger)
		if err != nil {
			logger.Error("tracing init failed", "error", err)
			cli.Exit(1)
		}
	}
	app.After = func() {
		observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)
	}

	app.Command("pass", "Compute one pass for a two-line element set", func(cmd *cli.Cmd) {
		cmd.Spec = "[OPTIONS] [FILE]"
		var (
			file   = cmd.StringArg("FILE", "", "file holding the two TLE lines (stdin when omitted)")
			format = cmd.StringOpt("f format", "geojson", "output format: geojson or svg")
			out    = cmd.StringOpt("o output", "", "output file (stdout when omitted)")
			track  = trackOptions(cmd)
		)
		cmd.Action = func() {
			if err := runPass(*file, *format, *out, track); err != nil {
				logger.Error("pass failed", "error", err)
				cli.Exit(1)
			}
		}
	})

	app.Command("batch", "Compute one pass per satellite of a 3-line catalog", func(cmd *cli.Cmd) {
		cmd.Spec = "[OPTIONS] [FILE]"
		var (
			file    = cmd.StringArg("FILE", "", "catalog file (stdin when omitted and no --url)")
			url     = cmd.StringOpt("u url", "", "download the catalog from this URL")
			workers = cmd.IntOpt("w workers", runtime.NumCPU(), "number of worker goroutines")
			limit   = cmd.IntOpt("n limit", 0, "only process the first N satellites (0 for all)")
			out     = cmd.StringOpt("o output", "", "output file (stdout when omitted)")
			track   = trackOptions(cmd)
		)
		cmd.Action = func() {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if err := runBatch(ctx, logger, *file, *url, *workers, *limit, *out, track); err != nil {
				logger.Error("batch failed", "error", err)
				cli.Exit(1)
			}
		}
	})

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// trackFlags are the sampling options shared by both commands.
type trackFlags struct {
	start       *string
	step        *string
	maxDuration *string
	revs        *float64
}

func trackOptions(cmd *cli.Cmd) trackFlags {
	def := groundtrack.DefaultConfig()
	return trackFlags{
		start:       cmd.StringOpt("s start", "", "pass start time, RFC 3339 (now when omitted)"),
		step:        cmd.StringOpt("step", def.Step.String(), "simulated time between samples"),
		maxDuration: cmd.StringOpt("max-duration", def.MaxDuration.String(), "upper bound on one pass"),
		revs:        cmd.Float64Opt("revs", def.MaxRevolutions, "revolutions per pass"),
	}
}

func (f trackFlags) config() (groundtrack.Config, time.Time, error) {
	var cfg groundtrack.Config
	step, err := time.ParseDuration(*f.step)
	if err != nil || step < time.Second {
		return cfg, time.Time{}, fmt.Errorf("invalid --step %q", *f.step)
	}
	maxDuration, err := time.ParseDuration(*f.maxDuration)
	if err != nil || maxDuration < step {
		return cfg, time.Time{}, fmt.Errorf("invalid --max-duration %q", *f.maxDuration)
	}
	if *f.revs <= 0 {
		return cfg, time.Time{}, fmt.Errorf("invalid --revs %v", *f.revs)
	}
	cfg = groundtrack.Config{Step: step, MaxDuration: maxDuration, MaxRevolutions: *f.revs}

	start := time.Now().UTC()
	if *f.start != "" {
		start, err = time.Parse(time.RFC3339, *f.start)
		if err != nil {
			return cfg, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
	}
	return cfg, start, nil
}

func runPass(file, format, out string, flags trackFlags) error {
	cfg, start, err := flags.config()
	if err != nil {
		return err
	}
	input, err := readInput(file)
	if err != nil {
		return err
	}
	line1, line2, err := tle.SplitInput(string(input))
	if err != nil {
		return err
	}
	prop, err := propagation.NewSGP4Propagator(line1, line2)
	if err != nil {
		return err
	}
	track, err := groundtrack.Compute(prop, cfg, start)
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(out)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "geojson":
		return writeGeoJSON(w, []trackResult{{elements: prop.Elements(), track: track}})
	case "svg":
		return writeSVG(w, prop.Elements(), track)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runBatch(ctx context.Context, logger *slog.Logger, file, url string, workers, limit int, out string, flags trackFlags) error {
	cfg, start, err := flags.config()
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("groundtrack").Start(ctx, "groundtrack.batch")
	defer span.End()

	var data []byte
	if url != "" {
		data, err = tle.NewFetcher(url, logger).Fetch(ctx)
	} else {
		data, err = readInput(file)
	}
	if err != nil {
		return err
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	span.SetAttributes(attribute.Int("batch.entries", len(entries)))

	began := time.Now()
	pool := groundtrack.NewWorkerPool(workers, cfg, logger)
	results, ok, failed := pool.TrackBatch(ctx, entries, start)
	logger.Info("batch complete",
		"entries", len(entries),
		"succeeded", ok,
		"failed", failed,
		"duration_ms", time.Since(began).Milliseconds(),
	)

	tracks := make([]trackResult, 0, ok)
	for _, r := range results {
		if r.Err == nil {
			tracks = append(tracks, trackResult{elements: r.Elements, track: r.Track})
		}
	}

	w, closeOut, err := openOutput(out)
	if err != nil {
		return err
	}
	defer closeOut()
	return writeGeoJSON(w, tracks)
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
