package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ait/internal/assistant"
	"pkt.systems/pslog"
)

func newAskCmd(cfgPath *string) *cobra.Command {
	var profileRef string
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the assistant a question outside a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			var sessionContext string
			if profileRef != "" {
				p, err := env.store.Profile(cmd.Context(), profileRef)
				if err != nil {
					return err
				}
				sessionContext = fmt.Sprintf("Profile: %s (%s@%s)", p.Name, p.User, p.Host)
			}
			client := assistant.New(assistantConfig(env), env.store, pslog.Ctx(cmd.Context()))
			answer, err := client.Ask(cmd.Context(), strings.Join(args, " "), sessionContext)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, strings.TrimSpace(answer.Text))
			if len(answer.Commands) > 0 {
				_, _ = fmt.Fprintln(out)
				for i, c := range answer.Commands {
					_, _ = fmt.Fprintf(out, "[%d] %s\n", i+1, strings.ReplaceAll(c, "\n", " && "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profileRef, "profile", "p", "", "describe this profile to the assistant")
	return cmd
}

func assistantConfig(env *appEnv) assistant.Config {
	return assistant.Config{
		ServerURL: env.cfg.Assistant.ServerURL,
		Model:     env.cfg.Assistant.Model,
		Timeout:   time.Duration(env.cfg.Assistant.TimeoutSeconds) * time.Second,
	}
}
