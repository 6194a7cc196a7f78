package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ait/schema"
)

func newHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Search and clear command history",
	}
	cmd.AddCommand(newHistorySearchCmd(cfgPath))
	cmd.AddCommand(newHistorySuggestCmd(cfgPath))
	cmd.AddCommand(newHistoryClearCmd(cfgPath))
	return cmd
}

func newHistorySearchCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <profile> [prefix]",
		Short: "List recorded commands starting with prefix",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}
			items, err := env.store.SearchHistory(cmd.Context(), p.ID, prefix, limit)
			if err != nil {
				return err
			}
			printSuggestions(cmd, items)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", schema.DefaultDropdownLimit, "maximum results")
	return cmd
}

func newHistorySuggestCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <profile> <prefix>",
		Short: "Show the suggestions offered for prefix, history first then dictionary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			items, err := env.store.Suggestions(cmd.Context(), p.ID, args[1], limit)
			if err != nil {
				return err
			}
			printSuggestions(cmd, items)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", schema.DefaultDropdownLimit, "maximum results")
	return cmd
}

func newHistoryClearCmd(cfgPath *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [profile]",
		Short: "Delete the history of one profile, or of every profile with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give a profile or --all")
			}
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			var rows int64
			if all {
				rows, err = env.store.ClearAllHistory(cmd.Context())
			} else {
				p, perr := env.store.Profile(cmd.Context(), args[0])
				if perr != nil {
					return perr
				}
				rows, err = env.store.ClearHistory(cmd.Context(), p.ID)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "history cleared (%d entries)\n", rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear the history of every profile")
	return cmd
}

func printSuggestions(cmd *cobra.Command, items []schema.CommandSuggestion) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "no matches")
		return
	}
	for _, item := range items {
		if item.Frequency == 0 {
			_, _ = fmt.Fprintf(out, "%s\n", item.Cmd)
			continue
		}
		last := time.Unix(item.LastUsed, 0).Format(time.DateTime)
		_, _ = fmt.Fprintf(out, "%4d  %s  %s\n", item.Frequency, last, item.Cmd)
	}
}
