// Package app wires configuration, logging, and the hat registry into a
// single bootstrap shared by every CLI command.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/hatloop/internal/config"
	"github.com/a-marczewski/hatloop/internal/hat"
	"github.com/a-marczewski/hatloop/internal/logging"
	"github.com/a-marczewski/hatloop/internal/tasks"
)

// App holds the long-lived components behind the CLI commands.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *hat.Registry
	Store    *tasks.Store // nil unless completion_source = "tasks"
	Verifier tasks.Verifier
}

// NewApp loads configuration, initializes the logger, registers the
// configured hats, and opens the task store when the configuration asks
// for it.
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.HatloopDir, "logs",
			fmt.Sprintf("hatloop-%s.log", time.Now().Format("2006-01-02")))
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, logFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry := hat.NewRegistry()
	for _, hc := range cfg.Hats {
		h := hat.Hat{
			Name:           hc.Name,
			Subscriptions:  hc.Subscriptions,
			Publishes:      hc.Publishes,
			MaxActivations: hc.MaxActivations,
			Backend:        hc.Backend,
		}
		if err := registry.Add(h); err != nil {
			return nil, fmt.Errorf("invalid hat %q: %w", hc.Name, err)
		}
	}
	// Config keys overrides by the raw hat name; the loop looks them up
	// by registered id.
	for _, h := range registry.Custom() {
		if h.Backend != "" {
			cfg.BackendOverrides[h.ID] = h.Backend
		}
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
	}

	switch cfg.CompletionSource {
	case "tasks":
		store, err := tasks.OpenStore(cfg.TaskStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open task store: %w", err)
		}
		a.Store = store
		a.Verifier = &tasks.StoreVerifier{Store: store}
	default:
		a.Verifier = &tasks.ChecklistVerifier{Path: cfg.ChecklistPath}
	}

	return a, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close task store", zap.Error(err))
		}
	}
	if a.Logger != nil {
		if err := a.Logger.Sync(); err != nil {
			if !strings.Contains(err.Error(), "invalid argument") &&
				!strings.Contains(err.Error(), "inappropriate ioctl for device") {
				fmt.Fprintf(os.Stderr, "Error syncing logger: %v\n", err)
			}
		}
	}
}
