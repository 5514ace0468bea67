package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/config"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/logging"
	"github.com/GriffinCanCode/synapse/internal/server"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "synapse",
		Short:         "Terminal grid and agent supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	agents := &cobra.Command{
		Use:   "agents",
		Short: "Work with agent manifests",
	}
	agents.AddCommand(newValidateCommand())

	root.AddCommand(newServeCommand(), agents)
	return root
}

type serveOptions struct {
	port      string
	host      string
	manifest  string
	autoStart bool
	dev       bool
}

func newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.port, "port", "", "listen port (overrides PORT)")
	flags.StringVar(&opts.host, "host", "", "listen address (overrides HOST)")
	flags.StringVar(&opts.manifest, "manifest", "", "agent manifest file (overrides AGENT_MANIFEST)")
	flags.BoolVar(&opts.autoStart, "auto-start", false, "start every manifest agent (overrides AGENT_AUTO_START)")
	flags.BoolVar(&opts.dev, "dev", false, "development logging")
	return cmd
}

// apply copies explicitly set flags over the environment configuration
func (o serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("manifest") {
		cfg.Agent.Manifest = o.manifest
	}
	if flags.Changed("auto-start") {
		cfg.Agent.AutoStart = o.autoStart
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = o.dev
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Synapse", zap.String("version", Version))

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check an agent manifest (.yaml, .yml, .toml or .json)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := agent.LoadManifest(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, def := range manifest.Agents {
				start := "manual"
				if def.ShouldStart(manifest.AutoStart) {
					start = "auto-start"
				}
				fmt.Fprintf(out, "%-20s %-10s %s\n", def.Name, start, def.Command)
			}
			fmt.Fprintf(out, "%s: %d agents OK\n", args[0], len(manifest.Agents))
			return nil
		},
	}
}
