package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/hatloop/internal/app"
	"github.com/a-marczewski/hatloop/internal/doctor"
	"github.com/a-marczewski/hatloop/internal/event"
	"github.com/a-marczewski/hatloop/internal/ledger"
	"github.com/a-marczewski/hatloop/internal/loop"
	"github.com/a-marczewski/hatloop/internal/runtime"
	"github.com/a-marczewski/hatloop/internal/scratch"
	"github.com/a-marczewski/hatloop/internal/termguard"
	"github.com/a-marczewski/hatloop/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "hatloop",
	Short: "hatloop - Event-driven agent orchestration loop",
	Long:  `hatloop repeatedly invokes a coding agent against an event bus until the work verifies as done or a safety limit trips.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for hatloop for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("hatloop v%s\n", version.Version)
	if latest, err := version.CheckForUpdates(); err == nil && latest != "" {
		fmt.Printf("A newer release is available: v%s\n", latest)
	}
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on the hatloop installation",
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) {
	diagnostics := doctor.NewRunner(a.Config).RunAll()
	diagnostics.PrintReport()
	if diagnostics.Status != "healthy" {
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [task prompt]",
	Short: "Run the orchestration loop on a task",
	Long: `Run the orchestration loop. The task prompt is taken from the
arguments, or from PROMPT.md in the project root when no arguments are
given. The loop repeats until the agent emits the completion promise
with verified-done work, or until a limit trips.

Exit codes: 0 verified completion, 2 resource limit, 130 interrupted,
1 any other failure.`,
}

var (
	runPrompt        string
	runInteractive   bool
	runBackend       string
	runMaxIterations int
	runMaxRuntime    int
	runMaxCost       float64
	runIdleTimeout   int
)

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Task prompt (overrides arguments and PROMPT.md)")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Run the agent on the foreground terminal with stdin forwarding")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Agent backend (claude, gemini, codex, or a custom command)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the iteration limit")
	runCmd.Flags().IntVar(&runMaxRuntime, "max-runtime", 0, "Override the runtime limit in seconds")
	runCmd.Flags().Float64Var(&runMaxCost, "max-cost", 0, "Override the cost limit in USD (0 disables)")
	runCmd.Flags().IntVar(&runIdleTimeout, "idle-timeout", 0, "Override the executor idle timeout in seconds")
}

func runRunCmd(a *app.App, cmd *cobra.Command, args []string) {
	code, err := executeRun(a, args)
	if err != nil {
		a.Logger.Error("Run failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "hatloop: %v\n", err)
	}
	a.Close()
	termguard.Teardown()
	os.Exit(code)
}

func executeRun(a *app.App, args []string) (int, error) {
	cfg := a.Config
	if runBackend != "" {
		cfg.Backend = runBackend
	}
	if runMaxIterations > 0 {
		cfg.MaxIterations = runMaxIterations
	}
	if runMaxRuntime > 0 {
		cfg.MaxRuntimeSeconds = runMaxRuntime
	}
	if runMaxCost > 0 {
		cfg.MaxCostUSD = runMaxCost
	}
	if runIdleTimeout > 0 {
		cfg.IdleTimeoutSeconds = runIdleTimeout
	}

	prompt, err := taskPrompt(cfg.ProjectRoot, args)
	if err != nil {
		return 1, err
	}

	bus := event.NewBus(a.Registry.Fallback().ID, a.Logger)
	for _, h := range a.Registry.All() {
		bus.Register(h.ID, h.Subscriptions)
	}

	led, err := ledger.Open(cfg.RunDir, filepath.Join(cfg.RunDir, "active-run"), a.Logger)
	if err != nil {
		return 1, err
	}
	defer led.Close()

	notes := scratch.NewNotes(cfg.KnowledgeFile, cfg.KnowledgeBudgetChars)
	runner := runtime.NewProcessRunner(cfg, runInteractive, nil, a.Logger)

	engine := loop.NewEngine(cfg, a.Registry, bus, runner, loop.Options{
		Interactive: runInteractive,
		Verifier:    a.Verifier,
		Notes:       notes,
		Ledger:      led,
		SideFile:    ledger.NewSideFile(cfg.EventsSideFile),
	}, a.Logger)
	bus.AddObserver(led.Observer(engine.Iteration))

	// SIGINT in autonomous mode goes to the loop as an interrupt
	// broadcast; interactive mode handles Ctrl-C inside the executor's
	// raw-terminal path instead.
	interrupt := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		signal.Stop(sigCh)
		close(interrupt)
	}()
	defer signal.Stop(sigCh)

	a.Logger.Info("Starting loop",
		zap.String("backend", cfg.Backend),
		zap.String("run_log", led.Path()),
		zap.Bool("interactive", runInteractive))
	fmt.Printf("hatloop: run log %s\n", led.Path())

	engine.Start(prompt)
	reason, runErr := engine.Run(context.Background(), interrupt)

	summary := engine.Summary(reason)
	fmt.Printf("hatloop: %s after %d iteration(s) in %s",
		reason, summary.Iterations, summary.Elapsed.Round(time.Second))
	if summary.CostUSD > 0 {
		fmt.Printf(" ($%.2f)", summary.CostUSD)
	}
	fmt.Println()

	if runErr != nil {
		return reason.ExitCode(), runErr
	}
	return reason.ExitCode(), nil
}

// taskPrompt resolves the initial task text: the --prompt flag first,
// then arguments, then PROMPT.md in the project root.
func taskPrompt(projectRoot string, args []string) (string, error) {
	if runPrompt != "" {
		return runPrompt, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := os.ReadFile(filepath.Join(projectRoot, "PROMPT.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no task given: pass a prompt argument or create PROMPT.md")
		}
		return "", fmt.Errorf("failed to read PROMPT.md: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("PROMPT.md is empty")
	}
	return prompt, nil
}

var eventsCmd = &cobra.Command{
	Use:   "events [run log]",
	Short: "Print the event log of a run",
	Long: `Print the event log of a run. With no argument the most recent
run log is used; a running loop's log can be named via the active-run
marker.`,
	Args: cobra.MaximumNArgs(1),
}

var eventsAll bool

func init() {
	eventsCmd.Flags().BoolVarP(&eventsAll, "all", "a", false, "Include consumed events, not just published ones")
}

func runEventsCmd(a *app.App, cmd *cobra.Command, args []string) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := latestRunLog(a.Config.RunDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hatloop: %v\n", err)
			os.Exit(1)
		}
		path = p
	}

	entries, err := ledger.ReadEntries(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hatloop: failed to read run log: %v\n", err)
		os.Exit(1)
	}

	for _, e := range entries {
		if !eventsAll && e.Direction != "published" {
			continue
		}
		line := fmt.Sprintf("%s  i%03d  %-9s  %s", e.Time.Format("15:04:05"), e.Iteration, e.Direction, e.Topic)
		if e.Target != "" {
			line += fmt.Sprintf(" -> %s", e.Target)
		}
		if e.Payload != "" {
			p := e.Payload
			if idx := strings.IndexByte(p, '\n'); idx >= 0 {
				p = p[:idx] + " ..."
			}
			line += "  " + p
		}
		fmt.Println(line)
	}
}

// latestRunLog prefers the active-run marker, falling back to the most
// recently named log file in the run directory.
func latestRunLog(runDir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(runDir, "active-run")); err == nil {
		if p := strings.TrimSpace(string(data)); p != "" {
			return p, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(runDir, "run-*.jsonl"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no run logs found in %s", runDir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	defer termguard.HandlePanic()

	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	runCmd.Run = newAppRunner(appInstance, runRunCmd)
	eventsCmd.Run = newAppRunner(appInstance, runEventsCmd)
	doctorCmd.Run = newAppRunner(appInstance, runDoctorCmd)

	if err := rootCmd.Execute(); err != nil {
		appInstance.Logger.Error("Root command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
