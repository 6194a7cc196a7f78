package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"pkt.systems/ait/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "keys.bundle"), filepath.Join(dir, "secrets"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPasswordRoundTrip(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPassword("p1", "hunter2"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	data, err := os.ReadFile(store.secretPath("p1", secretPassword))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Fatalf("password stored in plain text")
	}
	cred, err := store.Credential(context.Background(), schema.Profile{ID: "p1", AuthType: schema.AuthPassword})
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.Password != "hunter2" || len(cred.PrivateKey) != 0 {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestCredentialMissingIsEmpty(t *testing.T) {
	store := newTestStore(t)
	cred, err := store.Credential(context.Background(), schema.Profile{ID: "nobody", AuthType: schema.AuthPassword})
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if !cred.Empty() {
		t.Fatalf("expected empty credential, got %+v", cred)
	}
}

func TestGenerateKeyServesKeyAuth(t *testing.T) {
	store := newTestStore(t)
	pub, err := store.GenerateKey("p2", KeyTypeEd25519, 0)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if !strings.HasPrefix(pub, "ssh-ed25519") {
		t.Fatalf("expected ed25519 pub key, got %q", pub)
	}
	cred, err := store.Credential(context.Background(), schema.Profile{ID: "p2", AuthType: schema.AuthKey})
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if derived := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))); derived != pub {
		t.Fatalf("public key mismatch")
	}
	stored, err := store.PublicKey("p2")
	if err != nil || stored != pub {
		t.Fatalf("expected stored public key, got %q %v", stored, err)
	}
}

func TestSetPrivateKeyRejectsGarbage(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPrivateKey("p3", []byte("not a key")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTOTPSecretTravelsWithCredential(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPassword("p4", "pw"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.SetTOTPSecret("p4", " jbswy3dpehpk3pxp "); err != nil {
		t.Fatalf("set totp: %v", err)
	}
	cred, err := store.Credential(context.Background(), schema.Profile{ID: "p4", AuthType: schema.AuthPassword})
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("unexpected totp secret %q", cred.TOTPSecret)
	}
}

func TestRemoveDeletesSecrets(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPassword("p5", "pw"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.Remove("p5"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.read("p5", secretPassword); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist after removal, got %v", err)
	}
}

func TestInvalidProfileID(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPassword("../escape", "pw"); !errors.Is(err, schema.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	if err := store.Remove(""); !errors.Is(err, schema.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}
