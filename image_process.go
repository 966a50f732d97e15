package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"photoshrink/batch"
	"photoshrink/logger"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitCanceled = 130
)

// Processor is the presentation side of a batch: it owns the console and
// renders the messages sent by the background runner.
type Processor struct {
	Config  *Config
	Console *logger.Console
}

func NewProcessor(cfg *Config, console *logger.Console) *Processor {
	return &Processor{
		Config:  cfg,
		Console: console,
	}
}

// Run processes the configured directory and returns the process exit code.
func (p *Processor) Run(ctx context.Context) int {
	p.Console.Info("Processing directory: %s -> %s (quality: %d, workers: %d)",
		p.Config.SourceDir, p.Config.DestDir, p.Config.Quality, p.Config.Workers)

	runner := batch.NewRunner(batch.Options{
		SourceDir: p.Config.SourceDir,
		DestDir:   p.Config.DestDir,
		Quality:   p.Config.Quality,
		Workers:   p.Config.Workers,
		Logger:    p.Console.Logger,
	})

	timer := p.Console.StartTimer("Compression")
	// JSON output stays one record per line, so no bar.
	var bar *logger.ProgressBar
	if !p.Config.LogJSON {
		bar = p.Console.NewProgressBar("Compressing images")
	}

	var (
		summary *batch.Summary
		runErr  error
	)
	for ev := range runner.Start(ctx) {
		switch ev.Kind {
		case batch.EventProgress:
			if bar != nil {
				bar.Apply(ev.Delta, ev.Total)
			}
		case batch.EventDone:
			summary, runErr = ev.Summary, ev.Err
		}
	}
	if summary != nil && bar != nil {
		bar.Complete()
	}

	switch {
	case summary == nil:
		p.Console.Error("Processing error: %v", runErr)
		return exitFailure
	case errors.Is(runErr, context.Canceled):
		p.Console.Warn("Interrupted after %d of %d files", summary.Succeeded+summary.Failed, summary.FileCount)
	case runErr != nil:
		p.Console.Error("Processing error: %v", runErr)
	}

	if summary.FileCount == 0 {
		p.Console.Warn("No files found to process")
	}
	timer.End()
	p.displayResults(summary)

	switch {
	case errors.Is(runErr, context.Canceled):
		return exitCanceled
	case runErr != nil || summary.Failed > 0:
		return exitFailure
	}
	return exitOK
}

func (p *Processor) displayResults(s *batch.Summary) {
	var ratio float64
	if s.TotalSourceBytes > 0 {
		ratio = float64(s.TotalOutputBytes) / float64(s.TotalSourceBytes) * 100
	}

	if p.Config.LogJSON {
		p.Console.Logger.Info("processing summary",
			"files", s.FileCount,
			"succeeded", s.Succeeded,
			"failed", s.Failed,
			"kept_original", s.Fallbacks,
			"source_bytes", s.TotalSourceBytes,
			"output_bytes", s.TotalOutputBytes,
			"ratio_percent", ratio,
		)
		for _, f := range s.Failures {
			p.Console.Logger.Error("file failed", "path", f.Path, "err", f.Err)
		}
		return
	}

	table := p.Console.NewTable([]string{"Metric", "Value"})
	table.AddRow("Processed files", fmt.Sprintf("%d/%d", s.Succeeded, s.FileCount))
	table.AddRow("Failed files", fmt.Sprintf("%d", s.Failed))
	table.AddRow("Kept original", fmt.Sprintf("%d", s.Fallbacks))
	table.AddRow("Source size", humanize.IBytes(s.TotalSourceBytes))
	table.AddRow("Output size", humanize.IBytes(s.TotalOutputBytes))
	table.AddRow("Compression ratio", fmt.Sprintf("%.1f%%", ratio))
	if s.TotalSourceBytes > s.TotalOutputBytes {
		table.AddRow("Space saved", humanize.IBytes(s.TotalSourceBytes-s.TotalOutputBytes))
	}

	p.Console.Info("Processing summary:")
	table.Print()

	for _, f := range s.Failures {
		p.Console.Error("%s: %v", filepath.Base(f.Path), f.Err)
	}
}
