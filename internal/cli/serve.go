// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/server"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	addr    string
	noWatch bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API over a single conversation. The config file is watched
and sticky-deny and quota overrides are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.addr, "listen", "l", "", "Address to listen on (overrides server.addr)")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "Do not reload the config file on change")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootFlags, flags serveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := root.cfg
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	serverCfg := cfg.Server
	if flags.addr != "" {
		serverCfg.Addr = flags.addr
	}
	server.Version = Version

	srv := server.New(server.Options{
		Config:       serverCfg,
		DefaultModel: cfg.DefaultModel,
		Orchestrator: rt.orchestrator,
		Gate:         rt.gate,
		Caller:       rt.caller,
		Executor:     rt.executor,
		Completer:    rt.completer,
		Tracker:      rt.tracker,
		Logger:       slog.Default(),
	})

	if root.loadedFrom != "" && !flags.noWatch {
		go func() {
			err := config.Watch(ctx, root.loadedFrom, config.DefaultWatchDebounce, rt.applyConfig)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("config watch stopped", "path", root.loadedFrom, "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	st := newStyles(cmd.OutOrStdout())
	addr := serverCfg.Addr
	if addr == "" {
		addr = server.DefaultAddr
	}
	fmt.Fprintln(cmd.OutOrStdout(), st.status(true, "OK", "listening on http://"+addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
