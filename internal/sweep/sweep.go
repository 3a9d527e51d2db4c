package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ligustah/paramsweep/internal/progress"
	"github.com/ligustah/paramsweep/internal/replicate"
)

// DefaultWorkers is the pool size used when Config.Workers is not set.
const DefaultWorkers = 5

// Generator runs a model and returns its raw output.
type Generator interface {
	Generate(ctx context.Context, model string, input map[string]any) (replicate.Output, error)
}

// Fetcher downloads a generated file.
type Fetcher interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// Store persists generated files.
type Store interface {
	EnsureDir(dir string) error
	Save(ctx context.Context, key string, r io.Reader, metadata map[string]string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Config describes one sweep. It is not modified after New.
type Config struct {
	Kind   Kind
	Prompt string
	Seed   int64
	Model  string

	// Workers is the number of tasks run concurrently.
	// Default: 5
	Workers int

	// BaseParams are the model inputs shared by every task. Nil means
	// DefaultBaseParams.
	BaseParams map[string]any

	// SkipExisting skips values whose output object already exists.
	SkipExisting bool

	// TaskTimeout bounds a single task. Zero means no deadline.
	TaskTimeout time.Duration

	// RunID tags saved objects and log lines.
	RunID string
}

// Options wires a sweep to its collaborators.
type Options struct {
	Generator Generator
	Fetcher   Fetcher
	Store     Store

	// Logger receives one line per task start, completion and failure.
	// Default: discard.
	Logger *slog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Outcome is the result of one task.
type Outcome struct {
	Value    int
	Key      string
	URL      string
	Bytes    int64
	Skipped  bool
	Duration time.Duration
	Err      error
}

// OK reports whether the task saved or skipped its output.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Request is the model input for one swept value.
type Request struct {
	Value int
	Key   string
	Input map[string]any
}

// Requests returns the model input for every swept value of c, in order.
func (c Config) Requests() []Request {
	base := BaseParams(c.Kind, c.BaseParams)
	name := c.Kind.ParamName()
	values := c.Kind.Values()

	reqs := make([]Request, 0, len(values))
	for _, v := range values {
		reqs = append(reqs, Request{
			Value: v,
			Key:   c.Kind.Key(v),
			Input: BuildRequest(base, c.Prompt, c.Seed, name, v),
		})
	}
	return reqs
}

// Sweep runs one task per swept value on a bounded worker pool.
type Sweep struct {
	cfg  Config
	base map[string]any
	opts Options
}

// New validates cfg and returns a ready sweep.
func New(cfg Config, opts Options) (*Sweep, error) {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, errors.New("sweep: model is required")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("sweep: workers must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if opts.Generator == nil || opts.Fetcher == nil || opts.Store == nil {
		return nil, errors.New("sweep: generator, fetcher and store are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RunID != "" {
		opts.Logger = opts.Logger.With("run_id", cfg.RunID)
	}

	return &Sweep{
		cfg:  cfg,
		base: BaseParams(cfg.Kind, cfg.BaseParams),
		opts: opts,
	}, nil
}

// Config returns the sweep configuration with defaults applied.
func (s *Sweep) Config() Config {
	return s.cfg
}

// Requests returns the model input of every task without running anything.
func (s *Sweep) Requests() []Request {
	return s.cfg.Requests()
}

// Run executes every task and waits for all of them. Outcomes are ordered
// by swept value. Task failures never stop the sweep; they are logged and
// recorded in the returned outcomes.
func (s *Sweep) Run(ctx context.Context) []Outcome {
	values := s.cfg.Kind.Values()
	outcomes := make([]Outcome, len(values))

	// Tasks create the directory again and report their own failure.
	if err := s.opts.Store.EnsureDir(s.cfg.Kind.Dir()); err != nil {
		s.opts.Logger.Warn("create output dir", "dir", s.cfg.Kind.Dir(), "error", err)
	}

	type job struct {
		idx   int
		value int
	}

	workers := min(s.cfg.Workers, len(values))
	jobs := make(chan job, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcomes[j.idx] = s.RunTask(ctx, j.value)
			}
		}()
	}

	for i, v := range values {
		jobs <- job{idx: i, value: v}
	}
	close(jobs)

	wg.Wait()
	return outcomes
}

// RunTask generates, downloads and saves the video for one value. It never
// panics and never returns an error directly; failures are logged and
// recorded in the outcome. A partially written object is not removed.
func (s *Sweep) RunTask(ctx context.Context, value int) (out Outcome) {
	name := s.cfg.Kind.ParamName()
	out = Outcome{Value: value, Key: s.cfg.Kind.Key(value)}
	start := time.Now()

	s.opts.Logger.Info("starting", "param", name, "value", value)
	if s.opts.Progress != nil {
		s.opts.Progress.TaskStarted()
	}

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = time.Since(start)
		s.finish(out)
	}()

	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	out.Err = s.runTask(ctx, value, &out)
	return out
}

func (s *Sweep) runTask(ctx context.Context, value int, out *Outcome) error {
	kind := s.cfg.Kind

	if err := s.opts.Store.EnsureDir(kind.Dir()); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if s.cfg.SkipExisting {
		exists, err := s.opts.Store.Exists(ctx, out.Key)
		if err != nil {
			return fmt.Errorf("check existing output: %w", err)
		}
		if exists {
			out.Skipped = true
			return nil
		}
	}

	input := BuildRequest(s.base, s.cfg.Prompt, s.cfg.Seed, kind.ParamName(), value)

	output, err := s.opts.Generator.Generate(ctx, s.cfg.Model, input)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	videoURL, err := output.URL()
	if err != nil {
		return err
	}
	out.URL = videoURL

	body, err := s.opts.Fetcher.Get(ctx, videoURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", videoURL, err)
	}
	defer body.Close()

	n, err := s.opts.Store.Save(ctx, out.Key, body, s.metadata(value, videoURL))
	out.Bytes = n
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// finish logs the outcome and updates progress.
func (s *Sweep) finish(out Outcome) {
	name := s.cfg.Kind.ParamName()
	p := s.opts.Progress

	switch {
	case out.Err != nil:
		s.opts.Logger.Error("failed", "param", name, "value", out.Value, "error", out.Err)
		if p != nil {
			p.TaskFailed()
		}
	case out.Skipped:
		s.opts.Logger.Info("skipped, output exists", "param", name, "value", out.Value, "key", out.Key)
		if p != nil {
			p.TaskSkipped()
		}
	default:
		s.opts.Logger.Info("done", "param", name, "value", out.Value,
			"saved_to", out.Key,
			"bytes", out.Bytes,
			"duration", out.Duration.Round(time.Millisecond),
		)
		if p != nil {
			p.TaskCompleted(out.Bytes)
		}
	}
}

func (s *Sweep) metadata(value int, sourceURL string) map[string]string {
	md := map[string]string{
		"model":      s.cfg.Model,
		"param":      s.cfg.Kind.ParamName(),
		"value":      strconv.Itoa(value),
		"seed":       strconv.FormatInt(s.cfg.Seed, 10),
		"source_url": sourceURL,
	}
	if s.cfg.RunID != "" {
		md["run_id"] = s.cfg.RunID
	}
	return md
}

// Summary counts outcomes by result.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Bytes     int64
}

// Summarize counts outcomes.
func Summarize(outcomes []Outcome) Summary {
	var sum Summary
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			sum.Failed++
		case o.Skipped:
			sum.Skipped++
		default:
			sum.Succeeded++
			sum.Bytes += o.Bytes
		}
	}
	return sum
}
