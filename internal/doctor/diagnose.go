// Package doctor runs installation diagnostics: directory permissions,
// configuration sanity, backend availability, and completion-source
// health.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/a-marczewski/hatloop/internal/config"
	"github.com/a-marczewski/hatloop/internal/tasks"
)

// Diagnostics holds diagnostic information
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "fail", "warn"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "info", "warning", "error"
}

// Runner runs diagnostic checks
type Runner struct {
	config *config.Config
}

// NewRunner creates a new diagnostic runner
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{config: cfg}
}

// RunAll runs all diagnostic checks
func (d *Runner) RunAll() *Diagnostics {
	var results []CheckResult
	var issues []string

	results = append(results, d.checkDirectories()...)
	results = append(results, d.checkBackend()...)
	results = append(results, d.checkCompletionSource()...)
	results = append(results, d.checkHats()...)

	for _, result := range results {
		if result.Status == "fail" {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

// checkDirectories verifies the .hatloop tree exists and is writable.
func (d *Runner) checkDirectories() []CheckResult {
	var results []CheckResult

	for _, dir := range []string{d.config.HatloopDir, d.config.RunDir, filepath.Dir(d.config.LogFile)} {
		if info, err := os.Stat(dir); err != nil {
			results = append(results, CheckResult{
				Name:     "directory_exists",
				Status:   "fail",
				Message:  fmt.Sprintf("Missing directory %s: %v", dir, err),
				Severity: "error",
			})
			continue
		} else if !info.IsDir() {
			results = append(results, CheckResult{
				Name:     "directory_exists",
				Status:   "fail",
				Message:  fmt.Sprintf("%s exists but is not a directory", dir),
				Severity: "error",
			})
			continue
		}

		probe := filepath.Join(dir, ".doctor-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			results = append(results, CheckResult{
				Name:     "directory_writable",
				Status:   "fail",
				Message:  fmt.Sprintf("Cannot write to %s: %v", dir, err),
				Severity: "error",
			})
		} else {
			os.Remove(probe)
			results = append(results, CheckResult{
				Name:     "directory_writable",
				Status:   "pass",
				Message:  fmt.Sprintf("%s is writable", dir),
				Severity: "info",
			})
		}
	}

	return results
}

// checkBackend verifies every configured backend executable is on PATH.
func (d *Runner) checkBackend() []CheckResult {
	var results []CheckResult

	names := map[string]bool{d.config.Backend: true}
	for _, b := range d.config.BackendOverrides {
		names[b] = true
	}

	// The command builder uses the backend name verbatim as the
	// executable for names outside the known table.
	for name := range names {
		cmd := name
		if _, err := exec.LookPath(cmd); err != nil {
			results = append(results, CheckResult{
				Name:     "backend_available",
				Status:   "fail",
				Message:  fmt.Sprintf("Backend %q: executable %q not found on PATH", name, cmd),
				Severity: "error",
			})
		} else {
			results = append(results, CheckResult{
				Name:     "backend_available",
				Status:   "pass",
				Message:  fmt.Sprintf("Backend %q resolves to %q", name, cmd),
				Severity: "info",
			})
		}
	}

	return results
}

// checkCompletionSource verifies the configured completion source is
// usable: the checklist parses, or the task store opens.
func (d *Runner) checkCompletionSource() []CheckResult {
	var results []CheckResult

	switch d.config.CompletionSource {
	case "checklist":
		f, err := os.Open(d.config.ChecklistPath)
		if os.IsNotExist(err) {
			results = append(results, CheckResult{
				Name:     "checklist",
				Status:   "warn",
				Message:  fmt.Sprintf("No checklist at %s; completion verifies trivially", d.config.ChecklistPath),
				Severity: "warning",
			})
			break
		}
		if err != nil {
			results = append(results, CheckResult{
				Name:     "checklist",
				Status:   "fail",
				Message:  fmt.Sprintf("Cannot open checklist: %v", err),
				Severity: "error",
			})
			break
		}
		items, perr := tasks.ParseChecklist(f)
		f.Close()
		if perr != nil {
			results = append(results, CheckResult{
				Name:     "checklist",
				Status:   "fail",
				Message:  fmt.Sprintf("Checklist parse failed: %v", perr),
				Severity: "error",
			})
		} else {
			results = append(results, CheckResult{
				Name:     "checklist",
				Status:   "pass",
				Message:  fmt.Sprintf("Checklist has %d item(s), %d open", len(items), tasks.OpenCount(items)),
				Severity: "info",
			})
		}
	case "tasks":
		store, err := tasks.OpenStore(d.config.TaskStorePath)
		if err != nil {
			results = append(results, CheckResult{
				Name:     "task_store",
				Status:   "fail",
				Message:  fmt.Sprintf("Cannot open task store: %v", err),
				Severity: "error",
			})
			break
		}
		open, qerr := store.OpenTasks()
		store.Close()
		if qerr != nil {
			results = append(results, CheckResult{
				Name:     "task_store",
				Status:   "fail",
				Message:  fmt.Sprintf("Task store query failed: %v", qerr),
				Severity: "error",
			})
		} else {
			results = append(results, CheckResult{
				Name:     "task_store",
				Status:   "pass",
				Message:  fmt.Sprintf("Task store open, %d task(s) outstanding", open),
				Severity: "info",
			})
		}
	}

	return results
}

// checkHats flags subscription patterns that can never match anything
// the loop publishes by default.
func (d *Runner) checkHats() []CheckResult {
	var results []CheckResult

	for _, h := range d.config.Hats {
		for _, sub := range h.Subscriptions {
			if sub == "" {
				results = append(results, CheckResult{
					Name:     "hat_subscriptions",
					Status:   "fail",
					Message:  fmt.Sprintf("Hat %q has an empty subscription pattern", h.Name),
					Severity: "error",
				})
			}
		}
		if h.MaxActivations < 0 {
			results = append(results, CheckResult{
				Name:     "hat_activations",
				Status:   "fail",
				Message:  fmt.Sprintf("Hat %q has a negative activation limit", h.Name),
				Severity: "error",
			})
		}
	}
	if len(results) == 0 && len(d.config.Hats) > 0 {
		results = append(results, CheckResult{
			Name:     "hat_subscriptions",
			Status:   "pass",
			Message:  fmt.Sprintf("%d custom hat(s) configured", len(d.config.Hats)),
			Severity: "info",
		})
	}

	return results
}

// PrintReport writes a human-readable report to stdout.
func (d *Diagnostics) PrintReport() {
	fmt.Printf("hatloop doctor: %s\n\n", d.Status)
	for _, check := range d.Checks {
		marker := "✅"
		switch check.Status {
		case "fail":
			marker = "❌"
		case "warn":
			marker = "!"
		}
		fmt.Printf("%s %s: %s\n", marker, check.Name, check.Message)
	}
	if len(d.Issues) > 0 {
		fmt.Printf("\n%d issue(s) found.\n", len(d.Issues))
	}
}
