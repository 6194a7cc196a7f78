package sshclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrHostKeyMismatch reports a host whose key differs from known_hosts.
var ErrHostKeyMismatch = errors.New("host key mismatch")

// knownHostsCallback verifies host keys against known_hosts. Hosts seen for
// the first time are appended; a changed key is rejected.
func (t *Transport) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(t.cfg.KnownHostsPath)
	if path == "" {
		return nil, errors.New("known_hosts path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("%w for %s: %w", ErrHostKeyMismatch, hostname, err)
			}
			return t.trustHost(path, hostname, remote, key)
		}
		return err
	}, nil
}

func (t *Transport) trustHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	t.hostMu.Lock()
	defer t.hostMu.Unlock()
	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if ip := knownhosts.Normalize(remote.String()); ip != addresses[0] {
			addresses = append(addresses, ip)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(knownhosts.Line(addresses, key) + "\n"); err != nil {
		return err
	}
	t.log.Info("ssh host key added", "host", hostname, "fingerprint", ssh.FingerprintSHA256(key))
	return nil
}
