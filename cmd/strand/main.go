package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/orchestrator"
	"github.com/strandkit/strand/pkg/runtime"
)

type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Run      RunCmd      `cmd:"" help:"Run a workflow once and print the answer."`
	Serve    ServeCmd    `cmd:"" help:"Start the orchestration core."`

	Config string `short:"c" help:"Path to config file (omit for zero-config defaults)." type:"path"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(*CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("strand version %s\n", version)
	return nil
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	cfg, err := config.LoadFromFile(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid: %d provider(s), %d agent(s), %d workflow(s)\n",
		cli.Config, len(cfg.Providers), len(cfg.Agents), len(cfg.Workflows))
	return nil
}

type RunCmd struct {
	Workflow string `arg:"" help:"Workflow name."`
	Input    string `arg:"" help:"Initial input."`

	ConversationID   string        `help:"Continue an existing conversation."`
	SaveConversation bool          `help:"Persist the turn to the conversation store."`
	Timeout          time.Duration `default:"5m" help:"Overall run timeout."`
	JSON             bool          `help:"Print the full task result as JSON."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop(ctx)

	options := map[string]any{}
	if c.SaveConversation {
		options["save_conversation"] = true
	}

	id, err := rt.Orchestrator().Submit(ctx, orchestrator.KindRunWorkflow, orchestrator.RunWorkflowPayload{
		Workflow:       c.Workflow,
		Input:          c.Input,
		ConversationID: c.ConversationID,
		Options:        options,
	}, nil)
	if err != nil {
		return err
	}

	task, err := rt.Orchestrator().Wait(ctx, id, c.Timeout)
	if err != nil {
		return err
	}
	if task.State != orchestrator.StateCompleted {
		return fmt.Errorf("workflow %s: %s (%s)", c.Workflow, task.State, task.LastError)
	}

	if c.JSON {
		fmt.Println(string(task.Result))
		return nil
	}

	var result struct {
		FinalAnswer    string `json:"final_answer"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(task.Result, &result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	fmt.Println(result.FinalAnswer)
	if result.ConversationID != "" {
		fmt.Fprintf(os.Stderr, "conversation: %s\n", result.ConversationID)
	}
	return nil
}

type ServeCmd struct {
	Watch bool `help:"Reload the provider chain when the config file changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	cfg.Server.Enabled = true

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return err
	}
	if c.Watch && cli.Config != "" {
		if err := rt.WatchConfig(ctx, cli.Config); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	rt.Stop(shutdownCtx)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.ZeroConfig(), nil
	}
	return config.LoadFromFile(path)
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("strand"),
		kong.Description("Durable multi-agent workflow orchestration core"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
