// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
)

type askFlags struct {
	model       string
	autoApprove bool
	remote      string
}

func newAskCmd(root *rootFlags) *cobra.Command {
	var flags askFlags

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and print the answer. The question is read from the
arguments, or from stdin when none are given. Tool requests are prompted for
on a terminal and denied otherwise, unless --yes is given.`,
		Example: `  200model8 ask "What's new in Next.js?"
  echo "explain this stack trace" | 200model8 ask -m claude-3-5-sonnet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model id or fuzzy name (default: config default_model)")
	cmd.Flags().BoolVarP(&flags.autoApprove, "yes", "y", false, "Approve every tool request")
	cmd.Flags().StringVar(&flags.remote, "remote", "", "Call tools through the API served at this URL (see serve)")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootFlags, flags askFlags, args []string) error {
	ctx := cmd.Context()
	stdin := cmd.InOrStdin()
	interactive := isTerminal(stdin)

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && !interactive {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read question: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return fmt.Errorf("%w: a question is required", errs.ErrInvalidRequest)
	}

	rt, err := newRuntime(ctx, root.cfg, runtimeOptions{remoteURL: flags.remote})
	if err != nil {
		return err
	}
	defer rt.Close()

	in, closeIn := newPrompter(stdin, cmd.OutOrStdout())
	defer closeIn()

	s := newSession(rt, in, cmd.OutOrStdout(), resolveModel(flags.model, root.cfg.DefaultModel), interactive, flags.autoApprove)
	return s.runTurn(ctx, func(ctx context.Context) error {
		return rt.orchestrator.SendMessage(ctx, question, s.model)
	})
}
