package blobcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/mashiike/slogutils"
)

// Version is set at build time.
var Version = "current"

// CLI is the command-line interface for blobcast.
//
// Use the Run method to execute the CLI:
//
//	var cli blobcast.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// Available commands:
//   - serve: Start the webhook server (default)
//   - send: Forward notifications from a local file
//   - list: List journal delivery records
//   - validate: Validate a filter rules file
type CLI struct {
	LogLevel  string           `help:"log level" default:"info" env:"BLOBCAST_LOG_LEVEL"`
	LogFormat string           `help:"log format" default:"text" enum:"text,json" env:"BLOBCAST_LOG_FORMAT"`
	LogColor  bool             `help:"enable color output" default:"true" env:"BLOBCAST_LOG_COLOR" negatable:""`
	Version   kong.VersionFlag `help:"show version"`
	Queue     QueueOption      `embed:"" prefix:"queue-"`
	Telemetry TelemetryOption  `embed:"" prefix:"telemetry-"`
	Journal   JournalOption    `embed:"" prefix:"journal-"`
	Rules     string           `name:"rules" help:"path to filter rules file (local, https:// or s3://)" env:"BLOBCAST_RULES"`
	AppOption `embed:""`

	Serve    ServeOption    `cmd:"" help:"serve webhook server" default:"true"`
	Send     SendOption     `cmd:"" help:"forward notifications from a local file"`
	List     ListOption     `cmd:"" help:"list journal delivery records"`
	Validate ValidateOption `cmd:"" help:"validate a filter rules file"`
}

// ValidateOption contains options for the validate command.
type ValidateOption struct {
	Rules string `arg:"" name:"rules-file" optional:"" help:"path to filter rules file (overrides --rules)"`
}

// Run parses command-line arguments and executes the appropriate command.
// Returns 0 on success, 1 on error.
func (c *CLI) Run(ctx context.Context) int {
	k := kong.Parse(c,
		kong.Name("blobcast"),
		kong.Description("blobcast forwards storage blob change notifications to a message queue."),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		k.Fatalf("invalid log level: %s", c.LogLevel)
	}
	logger := newLogger(logLevel, c.LogFormat, c.LogColor)
	slog.SetDefault(logger)
	if err := c.run(ctx, k); err != nil {
		slog.Error("runtime error", "details", err)
		return 1
	}
	return 0
}

func (c *CLI) run(ctx context.Context, k *kong.Context) error {
	cmd := k.Command()
	if cmd == "version" {
		fmt.Printf("blobcast version %s\n", Version)
		return nil
	}
	// validate command doesn't need App initialization
	if cmd == "validate" || cmd == "validate <rules-file>" {
		return c.runValidate(ctx)
	}
	app, err := c.newApp(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.WarnContext(ctx, "app cleanup error", "details", err)
		}
	}()
	switch cmd {
	case "serve", "":
		return app.Serve(ctx, c.Serve)
	case "send <file>":
		return app.Send(ctx, c.Send)
	case "list":
		return app.List(ctx, c.List)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *CLI) runValidate(ctx context.Context) error {
	path := c.Validate.Rules
	if path == "" {
		path = c.Rules
	}
	if path == "" {
		return fmt.Errorf("no rules file specified; use --rules or provide a path as argument")
	}
	env, err := NewCELEnv()
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}
	slog.InfoContext(ctx, "validating rules", "path", path)
	rs, err := LoadRuleSet(path, env)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	for i, rule := range rs.Rules {
		slog.InfoContext(ctx, "rule validated",
			"index", i,
			"when", rule.When.Raw(),
			"skip", rule.Skip,
		)
	}
	fmt.Println("rules are valid")
	return nil
}

func (c *CLI) newApp(ctx context.Context) (*App, error) {
	queue, err := NewQueue(ctx, c.Queue)
	if err != nil {
		return nil, fmt.Errorf("create Queue: %w", err)
	}
	telemetry, err := NewTelemetry(ctx, c.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("create Telemetry: %w", err)
	}
	journal, err := NewJournal(ctx, c.Journal)
	if err != nil {
		return nil, fmt.Errorf("create Journal: %w", err)
	}
	var rules *RuleSet
	if c.Rules != "" {
		env, err := NewCELEnv()
		if err != nil {
			return nil, fmt.Errorf("create CEL environment: %w", err)
		}
		rules, err = LoadRuleSet(c.Rules, env)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		slog.InfoContext(ctx, "filter rules enabled", "rules", len(rules.Rules))
	}
	return New(c.AppOption, queue, telemetry, journal, rules)
}

func newLogger(level slog.Level, format string, c bool) *slog.Logger {
	var f func(io.Writer, *slog.HandlerOptions) slog.Handler
	switch format {
	case "json":
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, ho)
		}
	default:
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewTextHandler(w, ho)
		}
	}
	var modifierFuncs map[slog.Level]slogutils.ModifierFunc
	if c {
		modifierFuncs = map[slog.Level]slogutils.ModifierFunc{
			slog.LevelDebug: slogutils.Color(color.FgBlack),
			slog.LevelInfo:  nil,
			slog.LevelWarn:  slogutils.Color(color.FgYellow),
			slog.LevelError: slogutils.Color(color.FgRed, color.Bold),
		}
	}
	var addSource bool
	if level == slog.LevelDebug {
		addSource = true
	}
	middleware := slogutils.NewMiddleware(
		f,
		slogutils.MiddlewareOptions{
			Writer:        os.Stderr,
			ModifierFuncs: modifierFuncs,
			HandlerOptions: &slog.HandlerOptions{
				Level:     level,
				AddSource: addSource,
			},
		},
	)
	return slog.New(middleware)
}
