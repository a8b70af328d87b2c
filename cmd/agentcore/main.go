// Command agentcore is the minimal CLI surface bounding the core (spec
// §6): --directory, --model, --log-dir, --log-level, --debug. It is
// intentionally thin — the terminal UI, input editor, and rendering
// are external collaborators out of scope for this module (spec §1) —
// and exists to wire every core package into one runnable process,
// grounded on the teacher's cmd/opencode/commands/root.go +
// run.go shape.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidev/agentcore/internal/agent"
	"github.com/aidev/agentcore/internal/checkpoint"
	"github.com/aidev/agentcore/internal/compact"
	"github.com/aidev/agentcore/internal/config"
	"github.com/aidev/agentcore/internal/eventbus"
	"github.com/aidev/agentcore/internal/freshness"
	"github.com/aidev/agentcore/internal/inputqueue"
	"github.com/aidev/agentcore/internal/llm"
	"github.com/aidev/agentcore/internal/logging"
	"github.com/aidev/agentcore/internal/permission"
	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/internal/subagent"
	"github.com/aidev/agentcore/internal/tool"
)

var (
	flagDirectory string
	flagModel     string
	flagLogDir    string
	flagLogLevel  string
	flagDebug     bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "ReAct-style coding-agent orchestrator core",
	}
	root.PersistentFlags().StringVar(&flagDirectory, "directory", "", "working directory (default: current directory)")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model name to use, overriding config default_model")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for log files (implies file logging)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "shorthand for --log-level debug")

	root.AddCommand(runCmd())
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [message...]",
		Short: "Run one prompt to completion and print the streamed events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(strings.Join(args, " "))
		},
	}
}

func runOnce(message string) error {
	if message == "" {
		return fmt.Errorf("agentcore: run requires a message")
	}

	workDir := flagDirectory
	if workDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("agentcore: getwd: %w", err)
		}
		workDir = dir
	}

	level := flagLogLevel
	if flagDebug {
		level = "debug"
	}
	log, logFile := logging.New(logging.Config{
		Level:     logging.ParseLevel(level),
		LogToFile: flagLogDir != "",
		LogDir:    flagLogDir,
	})
	if logFile != nil {
		defer logFile.Close()
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("agentcore: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	modelName := flagModel
	if modelName == "" {
		modelName = cfg.DefaultModel
	}
	modelCfg, err := cfg.Model(modelName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	chatModel, err := llm.NewChatModel(ctx, llm.ProviderConfig{
		Provider:    modelCfg.Provider,
		Model:       modelName,
		APIKey:      cfg.APIKeys[modelCfg.Provider],
		Temperature: modelCfg.Temperature,
		MaxTokens:   modelCfg.MaxContextTokens,
	})
	if err != nil {
		return fmt.Errorf("agentcore: construct chat model: %w", err)
	}

	bus := eventbus.New(&log)
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("agentcore: start event bus: %w", err)
	}
	defer bus.Stop()

	tracker := freshness.New()
	todos := tool.NewTodoStore()
	writer := stream.New(&log)
	defer writer.Close()

	events := writer.Subscribe(256)
	go printEvents(events)

	registry := tool.NewRegistry()
	tool.RegisterBuiltins(registry, tracker, todos, bus)

	engine := permission.NewEngine(cfg.RuleSet(), nil)

	compactor := compact.New(compact.Config{
		Model:            chatModel,
		MaxContextTokens: modelCfg.MaxContextTokens,
		Writer:           writer,
	})

	agentRegistry := subagent.NewRegistry()
	agentRegistry.Load(subagent.UserAgentsDir(homeDir()), subagent.ProjectAgentsDir(workDir))

	executor := subagent.New(subagent.Config{
		Model:            chatModel,
		Registry:         registry,
		Permission:       engine,
		Descriptors:      agentRegistry,
		Compactor:        compactor,
		Writer:           writer,
		RecursionLimit:   agent.DefaultRecursionLimit,
		MaxContextTokens: modelCfg.MaxContextTokens,
		Log:              &log,
	})
	registry.Register(tool.NewTaskDescriptor(executor))

	dispatcher := tool.New(registry, writer)

	store, err := checkpoint.NewFileStore(checkpointDir(workDir))
	if err != nil {
		return fmt.Errorf("agentcore: open checkpoint store: %w", err)
	}
	checkpointer := checkpoint.New(store)
	queue := inputqueue.New()

	runner := agent.New(agent.Config{
		Model:            chatModel,
		Registry:         registry,
		Dispatcher:       dispatcher,
		Permission:       engine,
		Checkpoint:       checkpointer,
		Bus:              bus,
		Writer:           writer,
		Compactor:        compactor,
		InputQueue:       queue,
		SystemPrompt:     "You are a ReAct-style coding assistant.",
		RecursionLimit:   agent.DefaultRecursionLimit,
		MaxContextTokens: modelCfg.MaxContextTokens,
		Log:              &log,
	})

	threadID := "cli-" + workDir
	outcome, err := runner.Submit(ctx, threadID, message)
	if err != nil {
		return fmt.Errorf("agentcore: run: %w", err)
	}

	switch outcome.Status {
	case agent.StatusSuspended:
		fmt.Printf("\nsuspended: permission requested for %s (resolve via a Resume call)\n", outcome.Interrupt.ToolCall.Name)
	case agent.StatusFinished:
		fmt.Println()
	}
	return nil
}

func printEvents(events <-chan stream.Event) {
	for e := range events {
		switch e.Kind {
		case stream.KindMessageDelta:
			fmt.Print(e.Delta)
		case stream.KindToolStart:
			fmt.Printf("\n[tool] %s %s\n", e.ToolName, e.ToolArgs)
		case stream.KindToolEnd:
			fmt.Printf("[tool:%s] %s\n", e.ToolStatus, e.Message)
		case stream.KindError:
			fmt.Fprintf(os.Stderr, "\n[error] %s\n", e.Err)
		}
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func checkpointDir(workDir string) string {
	return config.ProjectDir(workDir) + "/checkpoints"
}
