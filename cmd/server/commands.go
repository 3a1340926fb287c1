package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/builder"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/config"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
)

var errCheckFailed = errors.New("connection check failed")

// app holds the process streams and the settings shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	dir    string

	// backend replaces the Web API backend when set.
	backend domain.MetadataBackend

	settings config.Settings
}

func newRootCommand(a *app) *cobra.Command {
	settings, envErr := config.SettingsFromEnv()

	root := &cobra.Command{
		Use:           "dataverse-metadata-mcp",
		Short:         "MCP server exposing Dataverse metadata over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envErr
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	a.settings = settings
	flags := root.PersistentFlags()
	flags.StringVarP(&a.settings.ConfigPath, "config", "c", settings.ConfigPath, "configuration file (YAML or JSON)")
	flags.StringVarP(&a.settings.CurrentEnvironment, "environment", "e", settings.CurrentEnvironment, "environment to select instead of the configured one")
	flags.StringVar(&a.settings.LogLevel, "log-level", settings.LogLevel, "log level: debug, info, warn or error")

	local := root.Flags()
	var skipCheck bool
	local.BoolVar(&skipCheck, "skip-startup-check", !settings.StartupCheck, "do not test the current environment on start-up")
	local.DurationVar(&a.settings.StartupCheckTimeout, "startup-timeout", settings.StartupCheckTimeout, "bound on the start-up connection test")
	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		a.settings.StartupCheck = !skipCheck
		return nil
	}

	root.AddCommand(newServeCommand(a, root), newEnvironmentsCommand(a), newCheckCommand(a))
	return root
}

func newServeCommand(a *app, root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol on stdin and stdout (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().AddFlagSet(root.Flags())
	cmd.PreRunE = root.PreRunE
	return cmd
}

func newEnvironmentsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "environments",
		Short: "List the configured environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			printEnvironments(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check [environment]",
		Short: "Test the connection to an environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			srv := a.builder(cfg, logger).Build()
			defer srv.Close()

			if len(args) == 1 {
				if err := srv.Registry.SetCurrent(args[0]); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			result := srv.Manager.TestConnection(ctx)

			name, display := srv.Registry.Current()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendRows([]table.Row{
				{"Environment", name},
				{"Display name", display},
				{"Status", status(result.Success)},
				{"Message", result.Message},
				{"Organization", result.OrganizationName},
				{"Version", result.Version},
			})
			t.Render()

			if !result.Success {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "bound on the connection test")
	return cmd
}

func status(ok bool) string {
	if ok {
		return "Connected"
	}
	return "Failed"
}

func printEnvironments(out io.Writer, cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Display name", "Organization URL", "Auth", "Current"})
	for _, name := range cfg.EnvironmentNames() {
		env := cfg.Environments[name]
		current := ""
		if name == cfg.CurrentEnvironment {
			current = "*"
		}
		t.AppendRow(table.Row{name, env.DisplayName, env.OrganizationURL, env.Authentication.AuthType, current})
	}
	t.Render()
}

// load resolves the configuration and logger for a command.
func (a *app) load() (*config.Config, *logging.Logger, error) {
	level, err := logging.ParseLevel(a.settings.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithWriter(a.stderr, level)

	dir := a.dir
	if dir == "" {
		dir = "."
	}
	path, found := config.ResolvePath(dir, a.settings.ConfigPath)
	if !found {
		logger.Warn("No configuration file found", logging.Fields{"searched": config.SearchPaths})
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("Configuration could not be loaded", logging.Fields{"error": err.Error()})
		return nil, nil, err
	}
	if a.settings.CurrentEnvironment != "" {
		cfg.CurrentEnvironment = a.settings.CurrentEnvironment
	}
	logger.Debug("Configuration loaded", logging.Fields{
		"path":         path,
		"environments": cfg.EnvironmentNames(),
	})
	return cfg, logger, nil
}

func (a *app) builder(cfg *config.Config, logger *logging.Logger) *builder.ServerBuilder {
	b := builder.NewServerBuilder().
		WithVersion(version).
		WithLogger(logger).
		WithConfig(cfg)
	if a.backend != nil {
		b = b.WithBackend(a.backend)
	}
	return b
}

// serve runs the protocol loop until end of input or a termination signal.
func (a *app) serve(ctx context.Context) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := a.builder(cfg, logger).Build()
	defer srv.Close()

	if a.settings.StartupCheck {
		go srv.StartupCheck(ctx, a.settings.StartupCheckTimeout)
	}

	logger.Info("Dataverse metadata server listening on stdio", logging.Fields{"version": version})
	err = srv.Stdio.Listen(ctx, a.stdin, a.stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped", logging.Fields{"error": err.Error()})
		return err
	}
	logger.Info("Server stopped")
	return nil
}
