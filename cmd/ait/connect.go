package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/ait"
	"pkt.systems/ait/internal/persist"
	"pkt.systems/ait/internal/sshclient"
	"pkt.systems/ait/internal/termui"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

func newConnectCmd(cfgPath *string) *cobra.Command {
	var (
		restore bool
		group   string
		noLocal bool
	)
	cmd := &cobra.Command{
		Use:   "connect [profile...]",
		Short: "Open a tab per profile and attach the terminal",
		Long: "Open a tab per profile and attach the terminal.\n\n" +
			"Keys: Right accepts the inline suggestion, Shift+Space opens the suggestion list, " +
			"Ctrl+Space toggles the assistant, Alt+t duplicates the tab, Alt+w closes it, " +
			"Alt+[ and Alt+] switch tabs, Ctrl+1..Ctrl+0 run macros and Alt+q quits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			workspace, err := persist.NewStoreWithLogger(env.cfg.StateDir, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			profiles, activeIdx, err := resolveTargets(cmd.Context(), env, workspace, args, group, restore)
			if err != nil {
				return err
			}

			ctx, closeLog, err := sessionLogger(cmd.Context(), env.cfg.Logging.File)
			if err != nil {
				return err
			}
			defer closeLog()

			engine, err := env.cfg.Engine()
			if err != nil {
				return err
			}
			opts := []ait.ClientOption{ait.WithSSH()}
			if !noLocal {
				opts = append(opts, ait.WithLocalShell())
			}
			client, err := ait.New(ait.ClientConfig{
				Engine: engine,
				SSH: sshclient.Config{
					KnownHostsPath: env.cfg.SSH.KnownHosts,
					DialTimeout:    env.cfg.SSH.DialTimeout(),
					Term:           env.cfg.SSH.Term,
				},
				Assistant: assistantConfig(env),
				Terminal: termui.Config{
					EnhancedKeys: env.cfg.Keyboard.Enhanced,
					Workspace:    workspace,
				},
			}, ait.ClientDeps{
				Storage:     env.store,
				Credentials: env.vault,
				Logger:      pslog.Ctx(ctx),
			}, opts...)
			if err != nil {
				return err
			}
			return client.Run(ctx, profiles, activeIdx)
		},
	}
	cmd.Flags().BoolVarP(&restore, "restore", "r", false, "reopen the tabs of the last session")
	cmd.Flags().StringVarP(&group, "group", "g", "", "open every profile in the group")
	cmd.Flags().BoolVar(&noLocal, "no-local", false, "refuse profiles that start a local shell")
	return cmd
}

// resolveTargets turns the command line into the profiles to open. Explicit
// profiles come first, then the group, then a restored workspace.
func resolveTargets(ctx context.Context, env *appEnv, workspace *persist.Store, refs []string, group string, restore bool) ([]schema.Profile, int, error) {
	var profiles []schema.Profile
	for _, ref := range refs {
		p, err := env.store.Profile(ctx, ref)
		if err != nil {
			return nil, 0, err
		}
		profiles = append(profiles, p)
	}
	if group != "" {
		all, err := env.store.Profiles(ctx)
		if err != nil {
			return nil, 0, err
		}
		matched := 0
		for _, p := range all {
			if p.Group == group {
				profiles = append(profiles, p)
				matched++
			}
		}
		if matched == 0 {
			return nil, 0, fmt.Errorf("no profiles in group %q", group)
		}
	}
	if len(profiles) > 0 || !restore {
		if len(profiles) == 0 {
			return nil, 0, errors.New("give at least one profile, --group or --restore")
		}
		return profiles, 0, nil
	}

	snapshot, ok, err := workspace.Load()
	if err != nil {
		return nil, 0, err
	}
	if !ok || len(snapshot.Profiles) == 0 {
		return nil, 0, errors.New("no saved workspace to restore")
	}
	logger := pslog.Ctx(ctx)
	activeIdx := 0
	for i, id := range snapshot.Profiles {
		p, err := env.store.Profile(ctx, string(id))
		if err != nil {
			logger.Warn("restore skipped profile", "profile", id, "err", err)
			continue
		}
		if i == snapshot.ActiveIdx {
			activeIdx = len(profiles)
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return nil, 0, errors.New("no profile of the saved workspace exists anymore")
	}
	return profiles, activeIdx, nil
}

// sessionLogger moves logging off the terminal while a session owns it.
func sessionLogger(ctx context.Context, path string) (context.Context, func(), error) {
	if path == "" {
		return ctx, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(f),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, NoColor: true}),
	)
	return pslog.ContextWithLogger(ctx, logger), func() { _ = f.Close() }, nil
}
