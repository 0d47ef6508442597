// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
)

type toolFlags struct {
	remote string
}

func newToolCmd(root *rootFlags) *cobra.Command {
	var flags toolFlags

	cmd := &cobra.Command{
		Use:   "tool <name> <query>",
		Short: "Call one tool and print its result envelope",
		Long: `Call one tool directly and print the result envelope as JSON. Running the
command is the approval, so the permission gate is not consulted.

Tools: ` + strings.Join(model.ToolNamesWithAliases(), ", "),
		Example: `  200model8 tool web_search "trending topics Kenya"
  200model8 tool code_docs next.js
  200model8 tool github_search "cobra cli examples"
  200model8 tool --remote http://127.0.0.1:8787 web_search golang`,
		Args: cobra.MinimumNArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return model.ToolNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := model.CanonicalToolName(name); !ok {
				return fmt.Errorf("%w: %s (known: %s)", errs.ErrUnknownTool, name, strings.Join(model.ToolNames(), ", "))
			}

			rt, err := newRuntime(cmd.Context(), root.cfg, runtimeOptions{remoteURL: flags.remote})
			if err != nil {
				return err
			}
			defer rt.Close()

			query := strings.Join(args[1:], " ")
			env, err := rt.executor.Call(cmd.Context(), name, map[string]any{"query": query})
			if err != nil {
				return err
			}
			body, err := env.Indented()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.remote, "remote", "", "Call tools through the API served at this URL (see serve)")
	return cmd
}
