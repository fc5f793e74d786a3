package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/oteladapters"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/scheduler"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
)

const instrumentationName = "snapshotplan"

type flags struct {
	configPath string
	start      string
	end        string
	run        bool
	janitor    bool
}

func main() {
	f := parseFlags()

	cfg, err := LoadConfig(f.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	storeOptions := []sqlengine.Option{sqlengine.WithLogger(logger)}
	var schedulerOptions []scheduler.Option

	if cfg.Observability {
		contextualLogger := oteladapters.NewSlogBridgeLogger(instrumentationName)
		metrics := oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))
		tracing := oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))

		storeOptions = append(
			storeOptions,
			sqlengine.WithContextualLogger(contextualLogger),
			sqlengine.WithMetrics(metrics),
			sqlengine.WithTracing(tracing),
		)
		schedulerOptions = append(
			schedulerOptions,
			scheduler.WithContextualLogger(contextualLogger),
			scheduler.WithMetrics(metrics),
			scheduler.WithTracing(tracing),
		)
	}

	store, closeStore, err := openStateStore(ctx, cfg.Database, storeOptions...)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer closeStore()

	p := &planner{cfg: cfg, store: store, logger: logger, out: os.Stdout, clock: time.Now}

	if f.janitor {
		deleted, janitorErr := p.janitor(ctx)
		if janitorErr != nil {
			log.Fatalf("Failed to delete expired snapshots: %v", janitorErr)
		}

		log.Printf("Deleted %d expired snapshots", deleted)

		return
	}

	project, err := model.LoadFile(cfg.ModelsFile)
	if err != nil {
		log.Fatalf("Failed to load models from %s: %v", cfg.ModelsFile, err)
	}

	p.project = project

	start, end := parseRange(f.start, f.end)

	snaps, err := p.plan(ctx, start, end)
	if err != nil {
		log.Fatalf("Failed to plan: %v", err)
	}

	if !f.run {
		return
	}

	result, err := p.run(ctx, snaps, start, end, printingEvaluator{out: os.Stdout, isDev: cfg.Dev}, schedulerOptions...)
	if err != nil {
		log.Fatalf("Run %s failed after %d batches: %v", result.RunID, result.Batches, err)
	}

	log.Printf("Run %s evaluated %d batches of %d snapshots", result.RunID, result.Batches, result.Snapshots)
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", ".", "Directory containing snapshotplan.yaml")
	flag.StringVar(&f.start, "start", "", "Inclusive start of the plan, e.g. 2024-01-01 (default: 7 days ago)")
	flag.StringVar(&f.end, "end", "", "Exclusive end of the plan (default: now)")
	flag.BoolVar(&f.run, "run", false, "Evaluate the plan and record the processed intervals")
	flag.BoolVar(&f.janitor, "janitor", false, "Delete expired snapshots and exit")

	flag.Parse()

	return f
}

func parseRange(startValue, endValue string) (time.Time, time.Time) {
	end := time.Now().UTC()
	if endValue != "" {
		parsed, err := model.ParseTime(endValue)
		if err != nil {
			log.Fatalf("Invalid end %q: %v", endValue, err)
		}

		end = parsed
	}

	start := end.AddDate(0, 0, -7)
	if startValue != "" {
		parsed, err := model.ParseTime(startValue)
		if err != nil {
			log.Fatalf("Invalid start %q: %v", startValue, err)
		}

		start = parsed
	}

	return start, end
}
