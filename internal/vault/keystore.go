package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

// EnsureKeyStore creates or loads the key store at path and ensures a root key exists.
func EnsureKeyStore(path string) error {
	return EnsureKeyStoreWithLogger(path, nil)
}

// EnsureKeyStoreWithLogger creates or loads the key store with logging.
func EnsureKeyStoreWithLogger(path string, logger pslog.Logger) error {
	if path == "" {
		return fmt.Errorf("vault key store path is required")
	}
	fail := func(err error) error {
		if logger != nil {
			logger.Warn("vault key store ensure failed", "err", err)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fail(err)
	}
	store, err := keymgmt.LoadProto(path)
	if err != nil {
		return fail(err)
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return fail(err)
	}
	if err := store.Commit(); err != nil {
		return fail(err)
	}
	if logger != nil {
		logger.Debug("vault key store ensure ok", "path", path)
	}
	return nil
}
