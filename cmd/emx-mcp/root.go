package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/emx-mail/mcp/pkgs/config"
	"github.com/emx-mail/mcp/pkgs/logging"
)

// app holds global options parsed from the command line
type app struct {
	configFile string
	envFile    string
	debug      bool
	logFormat  string

	stderr  io.Writer
	logger  *slog.Logger
	keyring config.KeyringOpener
}

func newApp(stderr io.Writer) *app {
	return &app{stderr: stderr, keyring: config.OpenKeyring}
}

func newRootCmd(a *app, stdout io.Writer) *cobra.Command {

	root := &cobra.Command{
		Use:   "emx-mcp",
		Short: "Mail client exposed as MCP tools",
		Long: `emx-mcp fetches messages over IMAP and sends them over SMTP.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (serve)
  - A command-line client (fetch, send, folders)

Configuration is read from flags, the environment, a .env file and
~/.config/emx-mail/config.yaml, in that order of precedence.`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger("")
		},
	}
	root.SetOut(stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate(`{{printf "emx-mcp version %s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default: $"+config.EnvConfigPath+" or ~/.config/emx-mail/config.yaml)")
	pf.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "Dotenv file read when present")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text or json (default: json in production, text otherwise)")
	config.BindFlags(pf)

	root.AddCommand(
		newServeCmd(a),
		newFetchCmd(a),
		newSendCmd(a),
		newFoldersCmd(a),
		newInitCmd(a),
		newVersionCmd(),
	)
	return root
}

// setupLogger builds the stderr logger. Stdout is left to the MCP stdio
// transport and command output.
func (a *app) setupLogger(env string) error {
	level := "info"
	if a.debug {
		level = "debug"
	}
	format := a.logFormat
	if format == "" && env == config.EnvProduction {
		format = logging.FormatJSON
	}

	logger, _, err := logging.New(a.stderr, level, format)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

// loadConfig resolves and validates the configuration for commands that
// talk to the mail servers.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: a.configFile,
		EnvFile:    a.envFile,
		Flags:      cmd.Flags(),
		Keyring:    a.keyring,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w\nRun 'emx-mcp init' to create a config file", err)
	}

	if cfg.IsProduction() {
		if err := a.setupLogger(cfg.Env); err != nil {
			return nil, err
		}
	}
	a.logger.Debug("config loaded",
		logging.UserHash(cfg.User),
		logging.Domain(cfg.User),
		slog.String("imap", cfg.IMAPConfig().Addr()),
		slog.String("smtp", cfg.SMTPConfig().Addr()),
	)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emx-mcp version %s\n", version)
		},
	}
}
