// Package main runs the subscription intake HTTP service.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/subscription-intake/pkg/config"
	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/server"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "subscription-intake",
		Short:        "Subscription intake service",
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML or YAML config file")

	rootCmd.AddCommand(
		newServeCommand(&configPath, stderr),
		newCheckConfigCommand(&configPath),
		newVersionCommand(),
	)
	return rootCmd
}

func newServeCommand(configPath *string, logOutput io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the intake API and health servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger := observability.NewLogger(cfg.Observability.Level(), logOutput).
				WithField("service", "subscription-intake").
				WithField("version", version)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.Build(ctx, cfg, logger, version)
			if err != nil {
				logger.WithError(err).Error("Failed to start")
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newCheckConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}

			for _, warning := range cfg.Warnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
