package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/ait/internal/appconfig"
	"pkt.systems/ait/internal/vault"
	"pkt.systems/pslog"
)

func newInitCmd(cfgPath *string) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config and create the credential vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			path, err := appconfig.WriteDefault(*cfgPath, overwrite)
			if err != nil {
				return err
			}
			logger.Info("init wrote", "path", path, "name", "config.yaml")
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}
			if err := vault.EnsureKeyStoreWithLogger(cfg.Vault.StorePath, logger); err != nil {
				return err
			}
			logger.Info("init wrote", "path", cfg.Vault.StorePath, "name", "keys.bundle")
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing config")
	return cmd
}
