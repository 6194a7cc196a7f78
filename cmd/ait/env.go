package main

import (
	"context"

	"pkt.systems/ait/internal/appconfig"
	"pkt.systems/ait/internal/store"
	"pkt.systems/ait/internal/vault"
	"pkt.systems/pslog"
)

// appEnv bundles the loaded config with the stores most commands need.
type appEnv struct {
	cfg   appconfig.Config
	store *store.Store
	vault *vault.Store
}

// openEnv loads the config and opens the database. The vault is opened only
// when withVault is set since it creates the root key on first use.
func openEnv(ctx context.Context, cfgPath string, withVault bool) (*appEnv, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	env := &appEnv{cfg: cfg, store: db}
	if withVault {
		v, err := vault.NewStoreWithLogger(cfg.Vault.StorePath, cfg.Vault.SecretDir, pslog.Ctx(ctx))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		env.vault = v
	}
	return env, nil
}

func (e *appEnv) Close() error {
	if e == nil {
		return nil
	}
	return e.store.Close()
}
