// Package runtime adapts the process executor into the loop's Runner:
// it builds the backend invocation for each iteration, allocates the
// executor, and forwards the result.
package runtime

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/hatloop/internal/command"
	"github.com/a-marczewski/hatloop/internal/config"
	"github.com/a-marczewski/hatloop/internal/executor"
)

// ProcessRunner spawns one agent process per loop iteration. In
// interactive mode it owns the single stdin pump shared by every
// iteration's executor.
type ProcessRunner struct {
	cfg         *config.Config
	interactive bool
	sink        executor.LineSink
	input       <-chan []byte
	logger      *zap.Logger
}

// NewProcessRunner builds a runner against the loaded configuration.
// sink receives structured output lines as they parse; nil disables it.
func NewProcessRunner(cfg *config.Config, interactive bool, sink executor.LineSink, logger *zap.Logger) *ProcessRunner {
	r := &ProcessRunner{
		cfg:         cfg,
		interactive: interactive,
		sink:        sink,
		logger:      logger,
	}
	if interactive {
		r.input = executor.NewInputPump(os.Stdin).Chunks()
	}
	return r
}

// Run executes the agent once. The backend is the hat's override when
// one is configured, otherwise the global backend.
func (r *ProcessRunner) Run(ctx context.Context, prompt, hatID string, interrupt <-chan struct{}) (*executor.Result, error) {
	backend := r.cfg.Backend
	if ov := r.cfg.BackendOverrides[hatID]; ov != "" {
		backend = ov
	}

	spec, err := command.NewBuilder(backend, r.cfg.Model).Build(prompt, r.interactive)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s invocation: %w", backend, err)
	}
	defer spec.Cleanup()

	mode := executor.ModeAutonomous
	if r.interactive {
		mode = executor.ModeInteractive
	}

	exe := executor.New(spec, executor.Options{
		Mode:        mode,
		IdleTimeout: time.Duration(r.cfg.IdleTimeoutSeconds) * time.Second,
		GracePeriod: time.Duration(r.cfg.GracePeriodSeconds) * time.Second,
		CtrlCWindow: time.Duration(r.cfg.CtrlCWindowMilliseconds) * time.Millisecond,
		Sink:        r.sink,
		Stdout:      os.Stdout,
		Input:       r.input,
	}, r.logger)

	return exe.Execute(ctx, interrupt)
}
