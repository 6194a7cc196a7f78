// Package vault keeps per-profile secrets encrypted at rest. Each profile
// gets its own data key derived from the root key in the key store.
package vault

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/ait/schema"
	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const (
	// KeyTypeEd25519 requests Ed25519 key generation.
	KeyTypeEd25519 = "ed25519"
	// KeyTypeRSA requests RSA key generation.
	KeyTypeRSA = "rsa"
	// DefaultRSABits is the default RSA key size in bits.
	DefaultRSABits   = 3072
	descriptorPrefix = "ait:profile:"
)

type secretKind string

const (
	secretPassword secretKind = "password"
	secretKey      secretKind = "key"
	secretTOTP     secretKind = "totp"
)

// Store manages encrypted credentials for profiles.
type Store struct {
	storePath string
	secretDir string
	log       pslog.Logger
}

// NewStore initializes the vault and ensures the root key exists.
func NewStore(storePath, secretDir string) (*Store, error) {
	return NewStoreWithLogger(storePath, secretDir, nil)
}

// NewStoreWithLogger initializes the vault with logging.
func NewStoreWithLogger(storePath, secretDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("vault key store path is required")
	}
	if strings.TrimSpace(secretDir) == "" {
		return nil, fmt.Errorf("vault secret directory is required")
	}
	if err := EnsureKeyStoreWithLogger(storePath, logger); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(secretDir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("vault_store", storePath, "vault_dir", secretDir)
	}
	return &Store{storePath: storePath, secretDir: secretDir, log: logger}, nil
}

// SetPassword stores the login password for a profile.
func (s *Store) SetPassword(id schema.ProfileID, password string) error {
	if password == "" {
		return s.remove(id, secretPassword)
	}
	return s.write(id, secretPassword, []byte(password))
}

// SetPrivateKey stores a PEM encoded private key for a profile.
func (s *Store) SetPrivateKey(id schema.ProfileID, pemData []byte) error {
	if _, err := ssh.ParseRawPrivateKey(pemData); err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	return s.write(id, secretKey, pemData)
}

// SetTOTPSecret stores the base32 secret used for verification codes.
func (s *Store) SetTOTPSecret(id schema.ProfileID, secret string) error {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if secret == "" {
		return s.remove(id, secretTOTP)
	}
	return s.write(id, secretTOTP, []byte(secret))
}

// GenerateKey creates a new private key for the profile and returns the
// authorized_keys line to install on the host.
func (s *Store) GenerateKey(id schema.ProfileID, keyType string, bits int) (string, error) {
	keyType = strings.ToLower(strings.TrimSpace(keyType))
	if keyType == "" {
		keyType = KeyTypeEd25519
	}
	var priv crypto.PrivateKey
	switch keyType {
	case KeyTypeEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", err
		}
		priv = key
	case KeyTypeRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
		if bits < 2048 {
			return "", fmt.Errorf("rsa bits must be at least 2048")
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return "", err
		}
		priv = key
	default:
		return "", fmt.Errorf("unsupported ssh key type %q", keyType)
	}
	block, err := ssh.MarshalPrivateKey(priv, "ait:"+string(id))
	if err != nil {
		return "", err
	}
	if err := s.write(id, secretKey, pem.EncodeToMemory(block)); err != nil {
		return "", err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	if s.log != nil {
		s.log.Info("vault key generated", "profile", id, "type", keyType)
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// PublicKey returns the authorized_keys line of the stored private key.
func (s *Store) PublicKey(id schema.ProfileID) (string, error) {
	plain, err := s.read(id, secretKey)
	if err != nil {
		return "", err
	}
	signer, err := ssh.ParsePrivateKey(plain)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// Credential returns the stored secrets for profile. Missing secrets leave
// the corresponding fields empty.
func (s *Store) Credential(ctx context.Context, profile schema.Profile) (schema.Credential, error) {
	if err := ctx.Err(); err != nil {
		return schema.Credential{}, err
	}
	var cred schema.Credential
	switch profile.AuthType {
	case schema.AuthPassword:
		plain, err := s.readOptional(profile.ID, secretPassword)
		if err != nil {
			return schema.Credential{}, err
		}
		cred.Password = string(plain)
	case schema.AuthKey:
		plain, err := s.readOptional(profile.ID, secretKey)
		if err != nil {
			return schema.Credential{}, err
		}
		cred.PrivateKey = plain
	}
	totp, err := s.readOptional(profile.ID, secretTOTP)
	if err != nil {
		return schema.Credential{}, err
	}
	cred.TOTPSecret = string(totp)
	return cred, nil
}

// Remove deletes every stored secret for the profile.
func (s *Store) Remove(id schema.ProfileID) error {
	if err := validID(id); err != nil {
		return err
	}
	dir := s.profileDir(id)
	if err := os.RemoveAll(dir); err != nil {
		if s.log != nil {
			s.log.Warn("vault remove failed", "profile", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("vault secrets removed", "profile", id)
	}
	return nil
}

func (s *Store) readOptional(id schema.ProfileID, kind secretKind) ([]byte, error) {
	plain, err := s.read(id, kind)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return plain, err
}

func (s *Store) read(id schema.ProfileID, kind secretKind) ([]byte, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	path := s.secretPath(id, kind)
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && s.log != nil {
			s.log.Warn("vault read failed", "profile", id, "kind", kind, "err", err)
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()
	material, root, err := s.materialFor(id)
	if err != nil {
		return nil, err
	}
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		if s.log != nil {
			s.log.Warn("vault decrypt failed", "profile", id, "kind", kind, "err", err)
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		if s.log != nil {
			s.log.Warn("vault decrypt failed", "profile", id, "kind", kind, "err", err)
		}
		return nil, err
	}
	return plain, nil
}

func (s *Store) write(id schema.ProfileID, kind secretKind, plain []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	fail := func(err error) error {
		if s.log != nil {
			s.log.Warn("vault write failed", "profile", id, "kind", kind, "err", err)
		}
		return err
	}
	material, root, err := s.materialFor(id)
	if err != nil {
		return err
	}
	dir := s.profileDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fail(err)
	}
	tmp, err := os.CreateTemp(dir, string(kind)+"-*.enc")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	abort := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fail(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return abort(err)
	}
	writer, err := kryptograf.New(root).EncryptWriter(tmp, material)
	if err != nil {
		return abort(err)
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		return abort(err)
	}
	if err := writer.Close(); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fail(err)
	}
	if err := os.Rename(tmpPath, s.secretPath(id, kind)); err != nil {
		_ = os.Remove(tmpPath)
		return fail(err)
	}
	if s.log != nil {
		s.log.Debug("vault write ok", "profile", id, "kind", kind)
	}
	return nil
}

func (s *Store) remove(id schema.ProfileID, kind secretKind) error {
	if err := os.Remove(s.secretPath(id, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) materialFor(id schema.ProfileID) (keymgmt.Material, keymgmt.RootKey, error) {
	fail := func(err error) (keymgmt.Material, keymgmt.RootKey, error) {
		if s.log != nil {
			s.log.Warn("vault material load failed", "profile", id, "err", err)
		}
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	store, err := keymgmt.LoadProto(s.storePath)
	if err != nil {
		return fail(err)
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return fail(err)
	}
	name := descriptorPrefix + string(id)
	material, err := store.EnsureDescriptor(name, root, []byte(name))
	if err != nil {
		return fail(err)
	}
	if err := store.Commit(); err != nil {
		return fail(err)
	}
	return material, root, nil
}

func validID(id schema.ProfileID) error {
	value := string(id)
	if strings.TrimSpace(value) == "" || strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return fmt.Errorf("%w: profile id %q", schema.ErrInvalidProfile, value)
	}
	return nil
}

func (s *Store) profileDir(id schema.ProfileID) string {
	return filepath.Join(s.secretDir, string(id))
}

func (s *Store) secretPath(id schema.ProfileID, kind secretKind) string {
	return filepath.Join(s.profileDir(id), string(kind)+".enc")
}
