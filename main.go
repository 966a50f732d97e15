package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"photoshrink/logger"
)

func main() {
	console := logger.NewConsole(logger.DefaultOptions())

	cfg, err := ParseConfig(os.Args[1:], console)
	switch {
	case errors.Is(err, errVersionShown), errors.Is(err, pflag.ErrHelp):
		os.Exit(0)
	case err != nil:
		os.Stderr.WriteString("Configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	console = logger.NewConsole(cfg.LoggerOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := NewProcessor(cfg, console).Run(ctx)
	stop()

	if code == exitOK {
		console.Success("All files processed")
	}
	os.Exit(code)
}
