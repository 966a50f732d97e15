package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"photoshrink/logger"
	"photoshrink/recompress"
)

type Config struct {
	SourceDir string
	DestDir   string
	Quality   int
	Workers   int
	LogLevel  string
	LogJSON   bool
	Color     bool
	Version   string
}

var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var (
	errVersionShown = errors.New("version shown")
	errUsage        = errors.New("usage: photoshrink [options] <source dir> <destination dir>")
)

const envPrefix = "PHOTOSHRINK"

// ParseConfig layers flags over environment over config file over defaults.
// A .env file in the working directory is loaded into the environment first.
func ParseConfig(args []string, console *logger.Console) (*Config, error) {
	flags := pflag.NewFlagSet("photoshrink", pflag.ContinueOnError)
	flags.SetOutput(console.Out)
	flags.Int("quality", 10, "JPEG quality (1-95, lower means smaller files)")
	flags.Int("workers", 1, "Number of files processed concurrently")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("json-logs", false, "Emit logs as JSON")
	flags.Bool("no-color", false, "Disable coloured output")
	configPath := flags.String("config", "", "Config file (default photoshrink.yaml in . or ~/.config/photoshrink)")
	showVersion := flags.Bool("version", false, "Show version information")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		console.Box("photoshrink version information", fmt.Sprintf(
			"Version: %s\nBuild date: %s\nGit commit: %s",
			Version, BuildDate, GitCommit,
		))
		return nil, errVersionShown
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v, err := newViper(flags, *configPath)
	if err != nil {
		return nil, err
	}

	if flags.NArg() != 2 {
		console.Info("Usage: photoshrink [options] <source dir> <destination dir>")
		console.Info("Options:")
		for _, line := range strings.Split(flags.FlagUsages(), "\n") {
			if line != "" {
				console.Log("%s", line)
			}
		}
		return nil, errUsage
	}

	cfg := &Config{
		SourceDir: flags.Arg(0),
		DestDir:   flags.Arg(1),
		Quality:   v.GetInt("quality"),
		Workers:   v.GetInt("workers"),
		LogLevel:  v.GetString("log.level"),
		LogJSON:   v.GetBool("log.json"),
		Color:     v.GetBool("log.color"),
		Version:   Version,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(flags *pflag.FlagSet, configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("quality", 10)
	v.SetDefault("workers", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.color", true)

	bindings := map[string]string{
		"quality":   "quality",
		"workers":   "workers",
		"log.level": "log-level",
		"log.json":  "json-logs",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	if flags.Changed("no-color") {
		noColor, _ := flags.GetBool("no-color")
		v.Set("log.color", !noColor)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("photoshrink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "photoshrink"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func (cfg *Config) validate() error {
	if err := recompress.ValidateQuality(cfg.Quality); err != nil {
		return err
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.SourceDir == "" || cfg.DestDir == "" {
		return errUsage
	}
	return nil
}

// LoggerOptions turns the logging settings into handler options.
func (cfg *Config) LoggerOptions() *logger.RichLoggerOptions {
	opts := logger.DefaultOptions()
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		opts.Level = level
	}
	opts.EnableJSON = cfg.LogJSON
	opts.EnableColors = cfg.Color && !cfg.LogJSON
	return opts
}
