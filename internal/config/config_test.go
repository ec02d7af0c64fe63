package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDataDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadConfigData(root, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultBackend, cfg.Backend)
	assert.Equal(t, DefaultCompletionPromise, cfg.CompletionPromise)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, DefaultMaxRuntimeSeconds, cfg.MaxRuntimeSeconds)
	assert.Zero(t, cfg.MaxCostUSD, "cost limit disabled by default")
	assert.Equal(t, "checklist", cfg.CompletionSource)
	assert.Equal(t, filepath.Join(root, "CHECKLIST.md"), cfg.ChecklistPath)
	assert.Equal(t, filepath.Join(root, ".hatloop", "run"), cfg.RunDir)
	assert.Empty(t, cfg.Hats)
}

func TestLoadConfigDataOverrides(t *testing.T) {
	data := []byte(`
[backend]
name = "gemini"
model = "gemini-2.5-pro"

[loop]
completion_promise = "ALL_DONE"
max_iterations = 12
max_cost_usd = 3.5
completion_source = "tasks"

[executor]
idle_timeout_seconds = 60
ctrl_c_window_ms = 500

[knowledge]
budget_chars = 4096

[logging]
level = "debug"
`)
	cfg, err := LoadConfigData(t.TempDir(), data)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Backend)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "ALL_DONE", cfg.CompletionPromise)
	assert.Equal(t, 12, cfg.MaxIterations)
	assert.Equal(t, 3.5, cfg.MaxCostUSD)
	assert.Equal(t, "tasks", cfg.CompletionSource)
	assert.Equal(t, 60, cfg.IdleTimeoutSeconds)
	assert.Equal(t, 500, cfg.CtrlCWindowMilliseconds)
	assert.Equal(t, 4096, cfg.KnowledgeBudgetChars)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigDataHats(t *testing.T) {
	data := []byte(`
[[hats]]
name = "Builder"
subscriptions = ["build.*", "task.start"]
publishes = ["build.finished", "build.blocked"]
max_activations = 5
backend = "codex"

[[hats]]
name = "reviewer"
subscriptions = ["build.finished"]
`)
	cfg, err := LoadConfigData(t.TempDir(), data)
	require.NoError(t, err)
	require.Len(t, cfg.Hats, 2)

	assert.Equal(t, "Builder", cfg.Hats[0].Name)
	assert.Equal(t, []string{"build.*", "task.start"}, cfg.Hats[0].Subscriptions)
	assert.Equal(t, 5, cfg.Hats[0].MaxActivations)
	assert.Equal(t, "codex", cfg.BackendOverrides["Builder"])

	assert.Empty(t, cfg.Hats[1].Backend)
}

func TestLoadConfigDataRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"bad completion source", "[loop]\ncompletion_source = \"vibes\"\n"},
		{"hat without subscriptions", "[[hats]]\nname = \"mute\"\n"},
		{"hat without name", "[[hats]]\nsubscriptions = [\"a.b\"]\n"},
		{"invalid toml", "[loop\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadConfigData(t.TempDir(), []byte(c.data))
			assert.Error(t, err)
		})
	}
}
