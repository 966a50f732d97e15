// Package batch drives the recompression pipeline over a directory.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"photoshrink/recompress"
)

// ProgressFunc receives (0, total) once before the first file and (1, total)
// after every file, processed or failed.
type ProgressFunc func(delta, total int)

// Options configures one batch run.
type Options struct {
	SourceDir string
	DestDir   string
	Quality   int
	// Workers bounds concurrent files. Values below 2 process files
	// strictly in order.
	Workers int
	Logger  *slog.Logger
	// OnResult, when set, sees every file result in completion order.
	OnResult func(Result)
}

// Result is the per-file report handed to OnResult.
type Result struct {
	Path    string
	Outcome recompress.Outcome
	Err     error
}

// Failure records a file that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// Summary aggregates a batch. Byte totals cover successfully processed files.
type Summary struct {
	FileCount        uint64
	Succeeded        uint64
	Failed           uint64
	Fallbacks        uint64
	TotalSourceBytes uint64
	TotalOutputBytes uint64
	Failures         []Failure
}

func (s *Summary) add(r Result) {
	if r.Err != nil {
		s.Failed++
		s.Failures = append(s.Failures, Failure{Path: r.Path, Err: r.Err})
		return
	}
	s.Succeeded++
	s.TotalSourceBytes += r.Outcome.SourceBytes
	s.TotalOutputBytes += r.Outcome.OutputBytes
	if r.Outcome.Fallback {
		s.Fallbacks++
	}
}

var supportedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// CollectFiles lists eligible images directly inside dir in name order.
func CollectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error while reading directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if supportedExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// NameCollisions groups files that may write the same destination name,
// e.g. "a.png" and "a.jpg". Groups are keyed by the shared name and listed
// in name order; only the first file of a group is processed.
func NameCollisions(files []string) map[string][]string {
	byName := map[string][]string{}
	for _, f := range files {
		for _, name := range recompress.OutputNames(f) {
			byName[name] = append(byName[name], f)
		}
	}

	collisions := map[string][]string{}
	for name, group := range byName {
		if len(group) > 1 {
			sort.Strings(group)
			collisions[name] = group
		}
	}
	return collisions
}

// Runner owns a batch loop.
type Runner struct {
	opts Options
	log  *slog.Logger
}

func NewRunner(opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{opts: opts, log: log}
}

// Run validates the configuration, then processes every eligible file.
// Per-file failures are recorded in the summary and never stop the batch.
// Cancelling ctx stops the batch between files; the partial summary is
// returned with ctx's error.
func (r *Runner) Run(ctx context.Context, progress ProgressFunc) (*Summary, error) {
	log := r.log.With("run", uuid.NewString())
	pipeline, err := recompress.NewPipeline(r.opts.DestDir, r.opts.Quality, log)
	if err != nil {
		return nil, err
	}

	files, err := CollectFiles(r.opts.SourceDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.opts.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating destination: %w", err)
	}

	for name, group := range NameCollisions(files) {
		log.Warn("files share an output name, only the first is processed",
			"name", name, "files", group)
	}
	pipeline.Reserve(files...)

	total := len(files)
	summary := &Summary{FileCount: uint64(total)}
	notify := func(delta int) {
		if progress != nil {
			progress(delta, total)
		}
	}
	notify(0)

	results := make(chan Result)
	go r.dispatch(ctx, pipeline, files, results)

	for res := range results {
		summary.add(res)
		if res.Err != nil {
			log.Error("file failed", "path", res.Path, "err", res.Err)
		} else {
			log.Debug("file done",
				"path", res.Path,
				"output", res.Outcome.OutputPath,
				"source_bytes", res.Outcome.SourceBytes,
				"output_bytes", res.Outcome.OutputBytes,
				"fallback", res.Outcome.Fallback,
			)
		}
		if r.opts.OnResult != nil {
			r.opts.OnResult(res)
		}
		notify(1)
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// dispatch feeds files to at most Workers goroutines and closes results once
// every started file has reported.
func (r *Runner) dispatch(ctx context.Context, p *recompress.Pipeline, files []string, results chan<- Result) {
	defer close(results)

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := p.Process(file)
			results <- Result{Path: file, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
}

// EventKind tags the messages sent by Start.
type EventKind int

const (
	EventProgress EventKind = iota
	EventResult
	EventDone
)

// Event is a message from a background batch to a presentation layer.
type Event struct {
	Kind EventKind

	// EventProgress
	Delta, Total int

	// EventResult
	Result Result

	// EventDone
	Summary *Summary
	Err     error
}

// Start runs the batch on its own goroutine and reports through the returned
// channel, which is closed after the EventDone message. Nothing is shared
// with the caller besides the channel.
func (r *Runner) Start(ctx context.Context) <-chan Event {
	events := make(chan Event, 16)

	runner := *r
	onResult := r.opts.OnResult
	runner.opts.OnResult = func(res Result) {
		if onResult != nil {
			onResult(res)
		}
		events <- Event{Kind: EventResult, Result: res}
	}

	go func() {
		defer close(events)
		summary, err := runner.Run(ctx, func(delta, total int) {
			events <- Event{Kind: EventProgress, Delta: delta, Total: total}
		})
		events <- Event{Kind: EventDone, Summary: summary, Err: err}
	}()

	return events
}
