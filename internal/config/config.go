// Package config loads hatloop configuration from .hatloop/config.toml,
// environment variables, and defaults. The result is handed to the loop
// fully validated; the loop never re-reads configuration at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultCompletionPromise       = "LOOP_COMPLETE"
	DefaultMaxIterations           = 50
	DefaultMaxRuntimeSeconds       = 4 * 3600
	DefaultMaxConsecutiveFailures  = 3
	DefaultIdleTimeoutSeconds      = 300
	DefaultStartTopic              = "task.start"
	DefaultBackend                 = "claude"
	DefaultKnowledgeBudgetChars    = 8192
	DefaultCompletionSource        = "checklist"
	DefaultCtrlCWindowMilliseconds = 1000
	DefaultGracePeriodSeconds      = 2
)

// Config is the validated structure handed to the loop at construction.
// Callers must not mutate it afterwards.
type Config struct {
	ProjectRoot string
	HatloopDir  string
	ConfigPath  string

	// Backend selection.
	Backend          string
	Model            string
	BackendOverrides map[string]string // hat id -> backend

	// Loop limits and completion policy.
	CompletionPromise      string
	MaxIterations          int
	MaxRuntimeSeconds      int
	MaxCostUSD             float64 // 0 disables the cost limit
	MaxConsecutiveFailures int
	StartTopic             string
	CompletionSource       string // "checklist" or "tasks"
	ChecklistPath          string
	TaskStorePath          string

	// Executor behavior.
	IdleTimeoutSeconds      int
	CtrlCWindowMilliseconds int
	GracePeriodSeconds      int

	// Knowledge store prepended to prompts.
	KnowledgeFile        string
	KnowledgeBudgetChars int

	// Event log plumbing.
	RunDir         string
	EventsSideFile string

	LogLevel string
	LogFile  string

	Hats []HatConfig
}

// HatConfig declares one custom hat's pub/sub topology.
type HatConfig struct {
	Name           string
	Subscriptions  []string
	Publishes      []string
	MaxActivations int
	Backend        string
}

type fileConfig struct {
	Backend struct {
		Name  string `toml:"name"`
		Model string `toml:"model"`
	} `toml:"backend"`
	Loop struct {
		CompletionPromise      string  `toml:"completion_promise"`
		MaxIterations          int     `toml:"max_iterations"`
		MaxRuntimeSeconds      int     `toml:"max_runtime_seconds"`
		MaxCostUSD             float64 `toml:"max_cost_usd"`
		MaxConsecutiveFailures int     `toml:"max_consecutive_failures"`
		StartTopic             string  `toml:"start_topic"`
		CompletionSource       string  `toml:"completion_source"`
		ChecklistPath          string  `toml:"checklist_path"`
	} `toml:"loop"`
	Executor struct {
		IdleTimeoutSeconds      int `toml:"idle_timeout_seconds"`
		CtrlCWindowMilliseconds int `toml:"ctrl_c_window_ms"`
		GracePeriodSeconds      int `toml:"grace_period_seconds"`
	} `toml:"executor"`
	Knowledge struct {
		File        string `toml:"file"`
		BudgetChars int    `toml:"budget_chars"`
	} `toml:"knowledge"`
	Events struct {
		SideFile string `toml:"side_file"`
	} `toml:"events"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	Hats []struct {
		Name           string   `toml:"name"`
		Subscriptions  []string `toml:"subscriptions"`
		Publishes      []string `toml:"publishes"`
		MaxActivations int      `toml:"max_activations"`
		Backend        string   `toml:"backend"`
	} `toml:"hats"`
}

// LoadConfig loads configuration from .hatloop/config.toml, environment
// variables, and defaults, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		return nil, err
	}
	hatloopDir := GetHatloopDir(projectRoot)
	if err := EnsureHatloopDirs(hatloopDir); err != nil {
		return nil, err
	}
	configPath := filepath.Join(hatloopDir, "config.toml")

	cfg := defaultConfig(projectRoot, hatloopDir, configPath)

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := applyFile(cfg, data); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigData parses raw TOML against defaults rooted at
// projectRoot. Used by tests and by callers that already hold the file
// contents.
func LoadConfigData(projectRoot string, data []byte) (*Config, error) {
	hatloopDir := GetHatloopDir(projectRoot)
	cfg := defaultConfig(projectRoot, hatloopDir, "")
	if len(data) > 0 {
		if err := applyFile(cfg, data); err != nil {
			return nil, err
		}
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig(projectRoot, hatloopDir, configPath string) *Config {
	return &Config{
		ProjectRoot:             projectRoot,
		HatloopDir:              hatloopDir,
		ConfigPath:              configPath,
		Backend:                 DefaultBackend,
		BackendOverrides:        make(map[string]string),
		CompletionPromise:       DefaultCompletionPromise,
		MaxIterations:           DefaultMaxIterations,
		MaxRuntimeSeconds:       DefaultMaxRuntimeSeconds,
		MaxConsecutiveFailures:  DefaultMaxConsecutiveFailures,
		StartTopic:              DefaultStartTopic,
		CompletionSource:        DefaultCompletionSource,
		ChecklistPath:           filepath.Join(projectRoot, "CHECKLIST.md"),
		TaskStorePath:           filepath.Join(hatloopDir, "store", "tasks.sqlite3"),
		IdleTimeoutSeconds:      DefaultIdleTimeoutSeconds,
		CtrlCWindowMilliseconds: DefaultCtrlCWindowMilliseconds,
		GracePeriodSeconds:      DefaultGracePeriodSeconds,
		KnowledgeFile:           filepath.Join(hatloopDir, "knowledge.md"),
		KnowledgeBudgetChars:    DefaultKnowledgeBudgetChars,
		RunDir:                  filepath.Join(hatloopDir, "run"),
		EventsSideFile:          filepath.Join(hatloopDir, "run", "events.jsonl"),
		LogLevel:                "info",
		LogFile:                 filepath.Join(hatloopDir, "logs", "hatloop.log"),
	}
}

func applyFile(cfg *Config, data []byte) error {
	var parsed fileConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if parsed.Backend.Name != "" {
		cfg.Backend = parsed.Backend.Name
	}
	if parsed.Backend.Model != "" {
		cfg.Model = parsed.Backend.Model
	}
	if parsed.Loop.CompletionPromise != "" {
		cfg.CompletionPromise = parsed.Loop.CompletionPromise
	}
	if parsed.Loop.MaxIterations > 0 {
		cfg.MaxIterations = parsed.Loop.MaxIterations
	}
	if parsed.Loop.MaxRuntimeSeconds > 0 {
		cfg.MaxRuntimeSeconds = parsed.Loop.MaxRuntimeSeconds
	}
	if parsed.Loop.MaxCostUSD > 0 {
		cfg.MaxCostUSD = parsed.Loop.MaxCostUSD
	}
	if parsed.Loop.MaxConsecutiveFailures > 0 {
		cfg.MaxConsecutiveFailures = parsed.Loop.MaxConsecutiveFailures
	}
	if parsed.Loop.StartTopic != "" {
		cfg.StartTopic = parsed.Loop.StartTopic
	}
	if parsed.Loop.CompletionSource != "" {
		cfg.CompletionSource = parsed.Loop.CompletionSource
	}
	if parsed.Loop.ChecklistPath != "" {
		cfg.ChecklistPath = resolvePath(cfg.ProjectRoot, parsed.Loop.ChecklistPath)
	}
	if parsed.Executor.IdleTimeoutSeconds > 0 {
		cfg.IdleTimeoutSeconds = parsed.Executor.IdleTimeoutSeconds
	}
	if parsed.Executor.CtrlCWindowMilliseconds > 0 {
		cfg.CtrlCWindowMilliseconds = parsed.Executor.CtrlCWindowMilliseconds
	}
	if parsed.Executor.GracePeriodSeconds > 0 {
		cfg.GracePeriodSeconds = parsed.Executor.GracePeriodSeconds
	}
	if parsed.Knowledge.File != "" {
		cfg.KnowledgeFile = resolvePath(cfg.ProjectRoot, parsed.Knowledge.File)
	}
	if parsed.Knowledge.BudgetChars > 0 {
		cfg.KnowledgeBudgetChars = parsed.Knowledge.BudgetChars
	}
	if parsed.Events.SideFile != "" {
		cfg.EventsSideFile = resolvePath(cfg.ProjectRoot, parsed.Events.SideFile)
	}
	if parsed.Logging.Level != "" {
		cfg.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		cfg.LogFile = resolvePath(cfg.HatloopDir, parsed.Logging.File)
	}

	for _, h := range parsed.Hats {
		cfg.Hats = append(cfg.Hats, HatConfig{
			Name:           h.Name,
			Subscriptions:  h.Subscriptions,
			Publishes:      h.Publishes,
			MaxActivations: h.MaxActivations,
			Backend:        h.Backend,
		})
		if h.Backend != "" {
			cfg.BackendOverrides[h.Name] = h.Backend
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HATLOOP_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("HATLOOP_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("HATLOOP_COMPLETION_PROMISE"); v != "" {
		cfg.CompletionPromise = v
	}
	if v := os.Getenv("HATLOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("HATLOOP_MAX_RUNTIME_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRuntimeSeconds = n
		}
	}
	if v := os.Getenv("HATLOOP_MAX_COST_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MaxCostUSD = f
		}
	}
	if v := os.Getenv("HATLOOP_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("HATLOOP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HATLOOP_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func validate(cfg *Config) error {
	if cfg.CompletionSource != "checklist" && cfg.CompletionSource != "tasks" {
		return fmt.Errorf("invalid completion_source %q: must be \"checklist\" or \"tasks\"", cfg.CompletionSource)
	}
	if cfg.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", cfg.MaxIterations)
	}
	for _, h := range cfg.Hats {
		if h.Name == "" {
			return fmt.Errorf("hat with empty name in config")
		}
		if len(h.Subscriptions) == 0 {
			return fmt.Errorf("hat %q declares no subscriptions", h.Name)
		}
	}
	return nil
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
