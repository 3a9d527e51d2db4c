package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/paramsweep/internal/config"
	sweephttp "github.com/ligustah/paramsweep/internal/http"
	"github.com/ligustah/paramsweep/internal/output"
	"github.com/ligustah/paramsweep/internal/progress"
	"github.com/ligustah/paramsweep/internal/replicate"
	"github.com/ligustah/paramsweep/internal/sweep"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitMissingToken = 1
	ExitInvalidArgs  = 2
	ExitStorageError = 3
	ExitGeneralError = 4
)

// Overridden in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if os.Getenv(config.TokenEnv) == "" {
		fmt.Fprintln(stderr, "Error: "+config.TokenEnv+" environment variable not set")
		return ExitMissingToken
	}

	def := config.Default()
	fs := flag.NewFlagSet("paramsweep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML configuration file")
	kind := fs.String("type", def.Type, "Parameter to vary: shift (sample_shift) or guide (sample_guide_scale)")
	prompt := fs.String("prompt", def.Prompt, "Text prompt for the model")
	seed := fs.Int64("seed", def.Seed, "Random seed for consistent results")
	model := fs.String("model", def.Model, "Model to run, owner/name or owner/name:version")
	workers := fs.Int("workers", def.Workers, "Number of concurrent workers")
	outputDir := fs.String("output", def.Output, "Local directory the comparison directory is created in")
	bucket := fs.String("bucket", "", "Destination bucket URL (s3://, gs://, file://), overrides -output")
	apiURL := fs.String("api-url", def.APIURL, "Predictions API base URL")
	skipExisting := fs.Bool("skip-existing", false, "Skip values whose video already exists")
	showProgress := fs.Bool("progress", false, "Show progress output")
	dryRun := fs.Bool("dry-run", false, "Print the model inputs without calling the API")
	verbose := fs.Bool("verbose", false, "Log API requests")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: paramsweep [options]

Generate one video per value of sample_shift (1..9) or sample_guide_scale
(0..10) with everything else held fixed, and save them side by side in
shift_comparison/ or guide_comparison/.

Requires REPLICATE_API_TOKEN in the environment or a .env file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg := def
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	// Flags given on the command line win over file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "type":
			cfg.Type = *kind
		case "prompt":
			cfg.Prompt = *prompt
		case "seed":
			cfg.Seed = *seed
		case "model":
			cfg.Model = *model
		case "workers":
			cfg.Workers = *workers
		case "output":
			cfg.Output = *outputDir
		case "bucket":
			cfg.Bucket = *bucket
		case "api-url":
			cfg.APIURL = *apiURL
		case "skip-existing":
			cfg.SkipExisting = *skipExisting
		case "progress":
			cfg.Progress = *showProgress
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	k, _ := sweep.ParseKind(cfg.Type)
	sweepCfg := sweep.Config{
		Kind:         k,
		Prompt:       cfg.Prompt,
		Seed:         cfg.Seed,
		Model:        cfg.Model,
		Workers:      cfg.Workers,
		BaseParams:   cfg.BaseParams,
		SkipExisting: cfg.SkipExisting,
		TaskTimeout:  cfg.TaskTimeout,
	}

	if *dryRun {
		return printRequests(sweepCfg)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[paramsweep] Received interrupt, cancelling running tasks...")
			cancel()
		case <-ctx.Done():
		}
	}()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	return runSweep(ctx, cfg, sweepCfg, logger)
}

func runSweep(ctx context.Context, cfg config.Config, sweepCfg sweep.Config, logger *slog.Logger) int {
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening output: %v\n", err)
		return ExitStorageError
	}
	defer store.Close()

	client, err := replicate.New(replicate.Config{
		BaseURL:      cfg.APIURL,
		Token:        cfg.Token,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fetcher := sweephttp.NewClient(sweephttp.Options{
		MaxIdleConnsPerHost: cfg.Workers * 2,
		Timeout:             cfg.Download.Timeout,
		RetryAttempts:       cfg.Download.Retries,
		RetryBackoff:        cfg.Download.Backoff,
		RetryMaxBackoff:     cfg.Download.MaxBackoff,
	})

	sweepCfg.RunID = uuid.NewString()
	kind := sweepCfg.Kind
	values := kind.Values()

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalTasks:     len(values),
			Workers:        cfg.Workers,
			Output:         stderr,
			UpdateInterval: 5 * time.Second,
			Label:          fmt.Sprintf("%s %d..%d", kind.ParamName(), values[0], values[len(values)-1]),
		})
		reporter.Start()
		defer reporter.Stop()
	}

	s, err := sweep.New(sweepCfg, sweep.Options{
		Generator: client,
		Fetcher:   fetcher,
		Store:     store,
		Logger:    logger,
		Progress:  reporter,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	fmt.Fprintf(stderr, "[paramsweep] Sweeping %s over %d values with %s (%d workers)\n",
		kind.ParamName(), len(values), cfg.Model, cfg.Workers)
	fmt.Fprintf(stderr, "[paramsweep] Run %s, writing to %s\n", sweepCfg.RunID, store.Location(kind.Dir()))

	outcomes := s.Run(ctx)
	if reporter != nil {
		reporter.Stop()
	}

	sum := sweep.Summarize(outcomes)
	fmt.Fprintf(stderr, "[paramsweep] %d saved, %d skipped, %d failed (%s)\n",
		sum.Succeeded, sum.Skipped, sum.Failed, progress.FormatBytes(sum.Bytes))
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "[paramsweep] Interrupted")
	}

	fmt.Fprintf(stdout, "\nAll done! Videos saved to the '%s' directory\n", kind.Dir())
	return ExitSuccess
}

func openStore(ctx context.Context, cfg config.Config) (*output.Store, error) {
	if cfg.Bucket != "" {
		return output.Open(ctx, cfg.Bucket)
	}
	return output.OpenLocal(cfg.Output)
}

// printRequests writes the model input of every task to stdout as JSON.
func printRequests(cfg sweep.Config) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for _, req := range cfg.Requests() {
		if err := enc.Encode(struct {
			Key   string         `json:"key"`
			Input map[string]any `json:"input"`
		}{req.Key, req.Input}); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	}
	return ExitSuccess
}
