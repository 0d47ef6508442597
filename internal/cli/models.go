// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/ratelimit"
)

// modelRow is one line of the models listing.
type modelRow struct {
	model.ModelInfo
	Unlimited bool `json:"unlimited"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}

func newModelsCmd(root *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models with their daily quotas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), root.cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if asJSON {
				rows, err := modelRows(cmd.Context(), rt.tracker)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printModels(cmd.Context(), cmd.OutOrStdout(), newStyles(cmd.OutOrStdout()), rt.tracker)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func modelRows(ctx context.Context, tracker *ratelimit.Tracker) ([]modelRow, error) {
	var usage map[string]ratelimit.Record
	if tracker != nil {
		var err error
		if usage, err = tracker.All(ctx); err != nil {
			return nil, err
		}
	}

	models := model.ListModels()
	rows := make([]modelRow, 0, len(models))
	for _, m := range models {
		row := modelRow{ModelInfo: m, Unlimited: m.Unlimited(), Remaining: m.DailyQuota}
		if rec, ok := usage[m.ID]; ok {
			row.DailyQuota = rec.MaxRequests
			row.Used = rec.Requests
			row.Remaining = rec.Remaining()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func printModels(ctx context.Context, out io.Writer, st *styles, tracker *ratelimit.Tracker) error {
	rows, err := modelRows(ctx, tracker)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, st.Title.Render("Models"))
	for _, r := range rows {
		quota := st.Success.Render("unlimited")
		if !r.Unlimited {
			text := fmt.Sprintf("%d/%d left today", r.Remaining, r.DailyQuota)
			switch {
			case r.Remaining == 0:
				quota = st.Error.Render(text)
			case r.Remaining*10 < r.DailyQuota:
				quota = st.Warning.Render(text)
			default:
				quota = st.Value.Render(text)
			}
		}
		fmt.Fprintf(out, "%s %s  %s\n", st.Label.Width(26).Render(r.ID), quota, st.Dim.Render(r.Description))
	}
	return nil
}
