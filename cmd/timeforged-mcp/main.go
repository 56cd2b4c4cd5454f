// TimeForged MCP - exposes a TimeForged daemon to coding agents.
//
// Usage:
//
//	timeforged-mcp                 Run the MCP server over stdio (default)
//	timeforged-mcp mcp             Same as above
//	timeforged-mcp status          Call a tool once and print the result
//	timeforged-mcp setup [agent]   Register the server with an agent host
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/timeforged/timeforged-mcp/internal/client"
	"github.com/timeforged/timeforged-mcp/internal/config"
	tfmcp "github.com/timeforged/timeforged-mcp/internal/mcp"
	"github.com/timeforged/timeforged-mcp/internal/observe"
	"github.com/timeforged/timeforged-mcp/internal/server"
	"github.com/timeforged/timeforged-mcp/internal/setup"
)

// version is set via ldflags at build time.
var version = "dev"

var (
	exitFunc = os.Exit

	initProvider = observe.InitProvider
	newMCPServer = tfmcp.NewServer
	serveMCP     = func(ctx context.Context, srv *mcpserver.MCPServer) error {
		stdio := mcpserver.NewStdioServer(srv)
		stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	}
	runSideServer = func(ctx context.Context, s *server.Server) error {
		return s.Run(ctx)
	}
	installAgent = setup.Install

	// Spans go to stderr; stdout is the MCP channel.
	newTraceExporter = func() (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}
)

// flagValues holds the persistent flags. Non-empty values win over the
// config file and the environment.
type flagValues struct {
	configPath  string
	serverURL   string
	apiKey      string
	logLevel    string
	metricsAddr string
	trace       bool
}

// app carries the resolved configuration between the pre-run hook and the
// command bodies.
type app struct {
	flags  flagValues
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.Execute(); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "timeforged-mcp: %s\n", err)
	exitFunc(1)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "timeforged-mcp",
		Short: "MCP server for TimeForged coding-time tracking",
		Long: `timeforged-mcp exposes a TimeForged daemon to coding agents as MCP tools.

With no subcommand it serves MCP over stdio. Tool subcommands call the
daemon once and print the same text an agent would see.

Environment:
  TF_SERVER_URL    TimeForged base URL (default ` + config.DefaultServerURL + `)
  TF_API_KEY       API key sent as X-Api-Key
  TF_CONFIG        Path to a YAML config file
  TF_LOG_LEVEL     debug | info | warn | error
  TF_METRICS_ADDR  Address for the /health and /metrics listener
  TF_TRACE         Export spans to stderr when true`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMCP(cmd.Context())
		},
	}
	root.SetVersionTemplate("timeforged-mcp {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "path to a YAML config file (env "+config.EnvConfigFile+")")
	pf.StringVar(&a.flags.serverURL, "server-url", "", "TimeForged base URL (env "+config.EnvServerURL+")")
	pf.StringVar(&a.flags.apiKey, "api-key", "", "API key (env "+config.EnvAPIKey+")")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error (env "+config.EnvLogLevel+")")
	pf.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "serve /health and /metrics on this address (env "+config.EnvMetricsAddr+")")
	pf.BoolVar(&a.flags.trace, "trace", false, "export spans to stderr as JSON (env "+config.EnvTrace+")")

	root.AddCommand(
		newMCPCmd(a),
		newStatusCmd(a),
		newTodayCmd(a),
		newReportCmd(a),
		newSessionsCmd(a),
		newSendCmd(a),
		newSetupCmd(a),
		newVersionCmd(),
	)
	return root
}

// apply overlays the non-empty flags onto cfg.
func (f flagValues) apply(cfg *config.Config) {
	if f.serverURL != "" {
		cfg.ServerURL = f.serverURL
	}
	if f.apiKey != "" {
		cfg.APIKey = f.apiKey
	}
	if f.logLevel != "" {
		cfg.LogLevel = config.LogLevel(f.logLevel)
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.trace {
		cfg.Trace = true
	}
}

// load resolves defaults, file, environment and flags, in that order.
func (a *app) load() error {
	path := a.flags.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.Load(path, a.flags.apply)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = observe.NewLogger(os.Stderr, cfg.LogLevel.SlogLevel(), cfg.LogFormat)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) newClient(m *observe.Metrics) *client.Client {
	config.WarnMissingKey(a.cfg, a.logger)
	var opts []client.Option
	if m != nil {
		opts = append(opts, client.WithMetrics(m))
	}
	return client.New(a.cfg, opts...)
}

// ─── mcp ─────────────────────────────────────────────────────────────────────

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMCP(cmd.Context())
		},
	}
}

func (a *app) runMCP(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pcfg := observe.ProviderConfig{ServiceVersion: version}
	if a.cfg.Trace {
		exp, err := newTraceExporter()
		if err != nil {
			return fmt.Errorf("init trace exporter: %w", err)
		}
		pcfg.TraceExporter = exp
	}
	shutdown, err := initProvider(ctx, pcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()
	c := a.newClient(metrics)
	srv := newMCPServer(c, metrics)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// stdin closing ends the session and takes the side listener with it.
		defer cancel()
		err := serveMCP(gctx, srv)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if a.cfg.MetricsAddr != "" {
		side := server.New(a.cfg.MetricsAddr, a.cfg.ServerURL, version)
		g.Go(func() error {
			return runSideServer(gctx, side)
		})
	}

	a.logger.Info("mcp server started", "backend", c.BaseURL(), "metrics_addr", a.cfg.MetricsAddr)
	return g.Wait()
}

// ─── Tool commands ───────────────────────────────────────────────────────────

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check TimeForged daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTool(cmd, "tf_status", map[string]any{})
		},
	}
}

func newTodayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's coding time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTool(cmd, "tf_today", map[string]any{})
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	var from, to, project, language string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show coding time for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTool(cmd, "tf_report", map[string]any{
				"from":     from,
				"to":       to,
				"project":  project,
				"language": language,
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start datetime (ISO 8601)")
	cmd.Flags().StringVar(&to, "to", "", "end datetime (ISO 8601)")
	cmd.Flags().StringVar(&project, "project", "", "filter by project name")
	cmd.Flags().StringVar(&language, "language", "", "filter by language")
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	var from, to, project string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List coding sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTool(cmd, "tf_sessions", map[string]any{
				"from":    from,
				"to":      to,
				"project": project,
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start datetime (ISO 8601)")
	cmd.Flags().StringVar(&to, "to", "", "end datetime (ISO 8601)")
	cmd.Flags().StringVar(&project, "project", "", "filter by project name")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	var eventType, project, language, activity string
	cmd := &cobra.Command{
		Use:   "send <entity>",
		Short: "Send an event to TimeForged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTool(cmd, "tf_send", map[string]any{
				"entity":     args[0],
				"event_type": eventType,
				"project":    project,
				"language":   language,
				"activity":   activity,
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "event-type", "file", "event type")
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&language, "language", "", "language (inferred from the extension when empty)")
	cmd.Flags().StringVar(&activity, "activity", "coding", "activity type")
	return cmd
}

// runTool calls one tool the way an agent would and prints its text. A
// tool error result becomes a command error.
func (a *app) runTool(cmd *cobra.Command, name string, args map[string]any) error {
	tool, ok := tfmcp.Find(tfmcp.Tools(a.newClient(nil)), name)
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := tool.Call(ctx, args)
	if err != nil {
		return err
	}

	text := toolText(res)
	if res.IsError {
		return errors.New(text)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func toolText(res *mcplib.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if tc, ok := mcplib.AsTextContent(res.Content[0]); ok {
		return tc.Text
	}
	return ""
}

// ─── setup / version ─────────────────────────────────────────────────────────

func newSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup [agent]",
		Short: "Register the MCP server with an agent host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, "Supported agents:")
				for _, ag := range setup.SupportedAgents() {
					fmt.Fprintf(out, "  %-12s %s\n", ag.Name, ag.Description)
					fmt.Fprintf(out, "  %-12s %s\n", "", ag.ConfigPath)
				}
				fmt.Fprintln(out, "\nRun: timeforged-mcp setup <agent>")
				return nil
			}

			res, err := installAgent(args[0], a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Registered timeforged with %s\n", res.Agent)
			fmt.Fprintf(out, "  -> %s\n", res.Destination)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Printing the version never needs a valid config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "timeforged-mcp %s\n", version)
		},
	}
}
