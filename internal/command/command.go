// Package command constructs the external agent invocation for a given
// prompt. It is the only place that knows backend-specific executables
// and argument shapes; the executor treats the result as opaque.
package command

import (
	"fmt"
	"os"
	"strings"
)

// Spec describes one agent invocation. TempFile, when set, is a file
// the command references and must outlive the child process; callers
// release it with Cleanup after the child exits.
type Spec struct {
	Command    string
	Args       []string
	Stdin      string
	TempFile   string
	StreamJSON bool // child emits newline-delimited structured records
}

// Cleanup removes the temp file, if any. Safe to call more than once.
func (s *Spec) Cleanup() {
	if s.TempFile != "" {
		_ = os.Remove(s.TempFile)
		s.TempFile = ""
	}
}

// backendConfig defines how to invoke a specific agent CLI.
type backendConfig struct {
	command     string
	baseArgs    []string // autonomous-mode arguments
	interArgs   []string // interactive-mode arguments
	contextMode string   // "stdin" or "args"
	streamJSON  bool     // autonomous mode emits structured records
	modelFlag   string
}

// backends maps backend names to invocation shapes. Unknown names are
// treated as custom commands taking the prompt on stdin.
var backends = map[string]backendConfig{
	"claude": {
		command:     "claude",
		baseArgs:    []string{"-p", "--verbose", "--output-format", "stream-json", "--dangerously-skip-permissions"},
		interArgs:   []string{"--dangerously-skip-permissions"},
		contextMode: "stdin",
		streamJSON:  true,
		modelFlag:   "--model",
	},
	"gemini": {
		command:     "gemini",
		baseArgs:    []string{"--yolo"},
		interArgs:   nil,
		contextMode: "args",
		modelFlag:   "--model",
	},
	"codex": {
		command:     "codex",
		baseArgs:    []string{"exec", "--full-auto"},
		interArgs:   nil,
		contextMode: "args",
		modelFlag:   "--model",
	},
}

// argPromptLimit is the prompt size above which arg-mode backends get
// the prompt via a temp file instead of the command line.
const argPromptLimit = 64 * 1024

// Builder constructs invocation specs for one backend/model pair.
type Builder struct {
	backend string
	model   string
}

// NewBuilder creates a builder for the named backend. Any name is
// accepted; names outside the known table run as custom commands.
func NewBuilder(backend, model string) *Builder {
	return &Builder{backend: backend, model: model}
}

// Build returns the invocation for a prompt. Interactive mode selects
// the backend's conversational surface; autonomous mode selects its
// non-interactive, machine-parseable surface.
func (b *Builder) Build(prompt string, interactive bool) (Spec, error) {
	cfg, known := backends[b.backend]
	if !known {
		cfg = backendConfig{
			command:     b.backend,
			contextMode: "stdin",
		}
	}
	if strings.TrimSpace(cfg.command) == "" {
		return Spec{}, fmt.Errorf("backend has no command")
	}

	var args []string
	if interactive {
		args = append(args, cfg.interArgs...)
	} else {
		args = append(args, cfg.baseArgs...)
	}
	if b.model != "" && cfg.modelFlag != "" {
		args = append(args, cfg.modelFlag, b.model)
	}

	spec := Spec{
		Command:    cfg.command,
		Args:       args,
		StreamJSON: !interactive && cfg.streamJSON,
	}

	switch cfg.contextMode {
	case "args":
		if len(prompt) > argPromptLimit {
			tmp, err := os.CreateTemp("", "hatloop-prompt-*.md")
			if err != nil {
				return Spec{}, fmt.Errorf("failed to create prompt file: %w", err)
			}
			if _, err := tmp.WriteString(prompt); err != nil {
				tmp.Close()
				os.Remove(tmp.Name())
				return Spec{}, fmt.Errorf("failed to write prompt file: %w", err)
			}
			if err := tmp.Close(); err != nil {
				os.Remove(tmp.Name())
				return Spec{}, fmt.Errorf("failed to close prompt file: %w", err)
			}
			spec.TempFile = tmp.Name()
			spec.Args = append(spec.Args, "@"+tmp.Name())
		} else {
			spec.Args = append(spec.Args, prompt)
		}
	default:
		spec.Stdin = prompt
	}
	return spec, nil
}
