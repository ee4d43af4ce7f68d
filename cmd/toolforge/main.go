package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolforge/internal/config"
	"toolforge/internal/llm"
	"toolforge/internal/logging"
	"toolforge/internal/registry"
	"toolforge/internal/sandbox"
	"toolforge/internal/workflow"
)

var (
	cfgPath      string
	outputFormat string
	settings     = config.Default()
	logger       *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "toolforge [request]",
	Short: "toolforge - an agent that writes its own tools",
	Long: `toolforge answers data requests by planning, generating, reviewing and
executing small Go tools inside a git-tracked sandbox.

Tools survive between runs: a request that needs a tool built last week
reuses it without regeneration. Tools that fail at runtime are routed back
through review instead of aborting the run.

The request is read from the arguments, or from stdin when absent.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		resolved, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		settings = resolved

		logger, err = logging.New(settings.Verbosity)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runRequest,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to a YAML config file")
	flags.CountVarP(&settings.Verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")

	flags.StringVar(&settings.SandboxPath, "sandbox", settings.SandboxPath, "sandbox directory for generated tools")
	flags.BoolVar(&settings.CleanRun, "clear-sandbox", false, "destroy the sandbox before starting")
	flags.StringVar(&settings.Branch, "branch", "", "sandbox git branch to work on")

	flags.BoolVarP(&settings.Interactive, "interactive", "i", false, "confirm plans and tool revisions on the console")
	flags.BoolVar(&settings.ReviewTools, "review-tools", false, "force a review pass over every planned tool")

	flags.StringVarP(&outputFormat, "format", "f", string(settings.OutputFormat), "answer format: markdown, json, csv or text")
	flags.StringVarP(&settings.OutputFile, "output", "o", "", "write the answer to this file instead of the default")
	flags.StringVar(&settings.StatePath, "state", settings.StatePath, "run state snapshot path")
	flags.IntVar(&settings.MaxIterations, "max-iterations", settings.MaxIterations, "abort after this many workflow steps")

	flags.StringVar(&settings.LLM.Provider, "provider", settings.LLM.Provider, "LLM provider")
	flags.StringVar(&settings.LLM.Model, "model", settings.LLM.Model, "LLM model name")
	flags.StringVar(&settings.LLM.APIKey, "api-key", "", "LLM API key (or GEMINI_API_KEY)")
}

// resolveSettings layers the configuration sources in precedence order:
// defaults, then the config file, then environment overrides, and finally
// any flag the operator explicitly set.
func resolveSettings(cmd *cobra.Command) (config.Settings, error) {
	base := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return base, err
		}
		base = loaded
	}
	base.ApplyEnv()

	resolved := mergeFlags(cmd, settings, base)
	resolved.OutputFormat = config.OutputFormat(outputFormat)
	if err := resolved.Validate(); err != nil {
		return resolved, err
	}
	return resolved, nil
}

// mergeFlags layers the base (file + env) under the flags: explicitly set
// flags win, everything else keeps the base value.
func mergeFlags(cmd *cobra.Command, flagged, base config.Settings) config.Settings {
	out := base
	fl := cmd.Flags()
	if fl.Changed("verbose") {
		out.Verbosity = flagged.Verbosity
	}
	if fl.Changed("sandbox") {
		out.SandboxPath = flagged.SandboxPath
	}
	if fl.Changed("clear-sandbox") {
		out.CleanRun = flagged.CleanRun
	}
	if fl.Changed("branch") {
		out.Branch = flagged.Branch
	}
	if fl.Changed("interactive") {
		out.Interactive = flagged.Interactive
	}
	if fl.Changed("review-tools") {
		out.ReviewTools = flagged.ReviewTools
	}
	if fl.Changed("format") {
		out.OutputFormat = config.OutputFormat(outputFormat)
	} else {
		outputFormat = string(base.OutputFormat)
	}
	if fl.Changed("output") {
		out.OutputFile = flagged.OutputFile
	}
	if fl.Changed("state") {
		out.StatePath = flagged.StatePath
	}
	if fl.Changed("max-iterations") {
		out.MaxIterations = flagged.MaxIterations
	}
	if fl.Changed("provider") {
		out.LLM.Provider = flagged.LLM.Provider
	}
	if fl.Changed("model") {
		out.LLM.Model = flagged.LLM.Model
	}
	if fl.Changed("api-key") {
		out.LLM.APIKey = flagged.LLM.APIKey
	}
	return out
}

func runRequest(cmd *cobra.Command, args []string) error {
	request, err := readRequest(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildClient(ctx)
	if err != nil {
		return err
	}

	session := uuid.NewString()
	mgr := sandbox.NewManager(settings.SandboxPath, sandbox.NewExecRunner(logger), session, logger)
	reg := registry.New(mgr.MetadataDir(), logger)

	var interactor workflow.Interactor
	if settings.Interactive {
		interactor = NewConsoleInteractor(os.Stdin, os.Stdout)
	}

	engine := workflow.NewEngine(settings, request, client, reg, mgr, interactor, logger)
	engine.SetWatcher(registry.NewWatcher(reg, mgr.ToolsDir(), logger))

	logger.Info("starting run",
		zap.String("session", session),
		zap.String("sandbox", settings.SandboxPath),
		zap.String("model", settings.LLM.Model))

	state, runErr := engine.Run(ctx)
	if runErr != nil {
		return runErr
	}
	if env := state.FinalResult; env != nil && env.FinalResult != "" {
		fmt.Fprintln(cmd.OutOrStdout(), env.FinalResult)
	}
	return nil
}

// readRequest takes the request from the arguments, falling back to stdin
// so the command composes in pipelines.
func readRequest(args []string) (string, error) {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request != "" {
		return request, nil
	}
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err == nil {
			request = strings.TrimSpace(string(data))
		}
	}
	if request == "" {
		return "", errors.New("no request given: pass it as arguments or on stdin")
	}
	return request, nil
}

func buildClient(ctx context.Context) (llm.Client, error) {
	switch settings.LLM.Provider {
	case "gemini":
		if settings.LLM.APIKey == "" {
			return nil, errors.New("no API key: set GEMINI_API_KEY or pass --api-key")
		}
		return llm.NewGemini(ctx, settings.LLM.APIKey, settings.LLM.Model, logger)
	}
	return nil, fmt.Errorf("unknown LLM provider %q", settings.LLM.Provider)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
