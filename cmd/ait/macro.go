package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/ait/schema"
)

func newMacroCmd(cfgPath *string) *cobra.Command {
	var profileRef string
	cmd := &cobra.Command{
		Use:   "macro",
		Short: "Manage Ctrl+1..Ctrl+0 macros, global or per profile",
	}
	cmd.PersistentFlags().StringVarP(&profileRef, "profile", "p", "", "profile the macros belong to (default global)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List macros; with --profile shows the merged set",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			var macros schema.Macros
			if profileRef == "" {
				macros, err = env.store.MacroSet(cmd.Context(), nil)
			} else {
				p, perr := env.store.Profile(cmd.Context(), profileRef)
				if perr != nil {
					return perr
				}
				macros, err = env.store.Macros(cmd.Context(), p.ID)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(macros) == 0 {
				_, _ = fmt.Fprintln(out, "no macros")
				return nil
			}
			for _, slot := range sortedSlots(macros) {
				_, _ = fmt.Fprintf(out, "%2s  %s\n", slot, macros[slot])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <slot> <command...>",
		Short: "Store a macro in slot 1..10 (0 is 10)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			owner, err := macroOwner(cmd, env, profileRef)
			if err != nil {
				return err
			}
			return env.store.SetMacro(cmd.Context(), owner, args[0], strings.Join(args[1:], " "))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm [slot]",
		Short: "Clear one slot, or the whole set without a slot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			owner, err := macroOwner(cmd, env, profileRef)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return env.store.DeleteMacros(cmd.Context(), owner)
			}
			return env.store.SetMacro(cmd.Context(), owner, args[0], "")
		},
	})
	return cmd
}

func macroOwner(cmd *cobra.Command, env *appEnv, ref string) (*schema.ProfileID, error) {
	if ref == "" {
		return nil, nil
	}
	p, err := env.store.Profile(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	return &p.ID, nil
}

func sortedSlots(macros schema.Macros) []string {
	slots := make([]string, 0, len(macros))
	for slot := range macros {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, _ := strconv.Atoi(slots[i])
		b, _ := strconv.Atoi(slots[j])
		return a < b
	})
	return slots
}
