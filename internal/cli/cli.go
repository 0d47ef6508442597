// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
)

// Version information, set at build time by the main package.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

type rootFlags struct {
	configPath string
	debug      bool

	// cfg is loaded in PersistentPreRunE and shared by every subcommand.
	cfg *config.Config
	// loadedFrom is the file cfg came from, or "" for built-in defaults.
	loadedFrom string
}

// NewRootCmd creates the command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "200model8",
		Short: "200model8 - chat with tool-using models",
		Long: `200model8 runs chat turns against Groq and Claude models. The model may ask
for a web search, library documentation or a GitHub search; every tool call
needs your approval first.`,
		Example: `  200model8 chat
  200model8 ask "What's trending in Kenya?"
  200model8 tool web_search "go 1.24 release notes"
  200model8 serve`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default: ~/.200model8/config.toml)")
	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newChatCmd(flags))
	cmd.AddCommand(newAskCmd(flags))
	cmd.AddCommand(newToolCmd(flags))
	cmd.AddCommand(newModelsCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and installs the default logger.
func (f *rootFlags) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFromPath(f.configPath)
		f.loadedFrom = f.configPath
	} else {
		cfg, err = config.Load()
		if path, perr := config.ConfigPath(); perr == nil {
			if _, serr := os.Stat(path); serr == nil {
				f.loadedFrom = path
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}
	config.SetGlobal(cfg)
	f.cfg = cfg

	level := parseLevel(cfg.LogLevel)
	if f.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	slog.Debug("config loaded", "path", f.loadedFrom, "log_level", level.String())
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) int {
	root := NewRootCmd()
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		st := newStyles(stderr)
		fmt.Fprintln(stderr, st.Error.Render("Error:")+" "+err.Error())
		return errs.ExitCode(err)
	}
	return errs.ExitSuccess
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skip config loading so version works with a broken config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "200model8 %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
