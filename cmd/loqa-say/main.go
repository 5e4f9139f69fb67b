package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/runtime"
	"github.com/loqalabs/loqa-say/internal/tray"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "loqa-say.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))
	rt := runtime.New(cfg, version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Tray.Enabled {
		if err := rt.Start(ctx); err != nil {
			fail(logger, err)
		}
		logger.Info("shutdown complete")
		return
	}

	// systray owns the main thread; the runtime runs beside it.
	t := tray.New(cfg.Tray.Title, rt.Enqueue, logger)
	rt.AttachTray(t)
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Start(ctx)
		t.Stop()
	}()
	t.Run(nil)

	if err := <-errCh; err != nil {
		fail(logger, err)
	}
	logger.Info("shutdown complete")
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !flagSet("config") {
		return config.Load("")
	}
	return cfg, err
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fail(logger *slog.Logger, err error) {
	logger.Error("runtime exited with error", slog.String("error", err.Error()))
	time.Sleep(1 * time.Second)
	os.Exit(1)
}
