/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package cmd contains the command line interface of the relay.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acronis/go-wsrelay/internal/app"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/service"
)

const appName = "wsrelay"

// Version info set by main package.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

type rootOptions struct {
	configPath string
	envPrefix  string
	checkOnly  bool
}

// NewRootCommand creates the wsrelay command with all its subcommands.
func NewRootCommand() *cobra.Command {
	opts := rootOptions{}
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Websocket broadcast relay",
		Long: `wsrelay keeps a single websocket connection to an upstream sequencer
and rebroadcasts every frame it receives to all connected downstream clients.

Configuration is read from the file passed via --config (YAML or JSON)
and from environment variables, e.g. WSRELAY_UPSTREAM_URL for upstream.url.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file (YAML or JSON)")
	rootCmd.Flags().StringVar(&opts.envPrefix, "env-prefix", app.DefaultEnvPrefix, "prefix of environment variables overriding configuration values")
	rootCmd.Flags().BoolVar(&opts.checkOnly, "check-config", false, "validate the configuration and exit")

	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func run(cmd *cobra.Command, opts rootOptions) error {
	cfg, err := app.LoadConfig(opts.configPath, opts.envPrefix)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.checkOnly {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return err
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	logger.Info("starting "+appName,
		log.String("version", versionInfo.Version),
		log.String("commit", versionInfo.Commit),
		log.String("build_date", versionInfo.BuildDate),
	)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create relay", log.Error(err))
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("failed to close relay resources", log.Error(closeErr))
		}
	}()

	if err = service.New(logger, a.Unit()).StartContext(cmd.Context()); err != nil {
		logger.Error("relay stopped with error", log.Error(err))
		return err
	}
	logger.Info(appName + " stopped")
	return nil
}
