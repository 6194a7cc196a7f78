package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/ait/internal/assistant"
)

// settingKeys are the keys users manage directly; macros live in the same
// table under their own prefix and are handled by `ait macro`.
var settingKeys = []string{
	assistant.SettingServerURL,
	assistant.SettingModel,
	assistant.SettingLanguage,
}

func newSettingsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage stored settings (" + strings.Join(settingKeys, ", ") + ")",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			value, ok, err := env.store.Setting(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("setting %q is not set", args[0])
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !knownSetting(args[0]) {
				return fmt.Errorf("unknown setting %q (known: %s)", args[0], strings.Join(settingKeys, ", "))
			}
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			value := strings.Join(args[1:], " ")
			if err := env.store.SetSetting(cmd.Context(), args[0], value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			return env.store.DeleteSetting(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			settings, err := env.store.Settings(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range settings {
				if !knownSetting(s.Key) {
					continue
				}
				_, _ = fmt.Fprintf(out, "%s = %s\n", s.Key, s.Value)
			}
			return nil
		},
	})
	return cmd
}

func knownSetting(key string) bool {
	for _, k := range settingKeys {
		if k == key {
			return true
		}
	}
	return false
}
