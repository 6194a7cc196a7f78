package ait

import (
	"context"
	"fmt"

	"pkt.systems/ait/schema"
)

// SessionTransport is a core.Transport that can tell which sessions it
// opened.
type SessionTransport interface {
	Open(ctx context.Context, profile schema.Profile, cred schema.Credential, size schema.Dimensions) (schema.SessionID, error)
	Write(ctx context.Context, id schema.SessionID, data []byte) error
	Resize(ctx context.Context, id schema.SessionID, size schema.Dimensions) error
	Close(ctx context.Context, id schema.SessionID) error
	Exec(ctx context.Context, id schema.SessionID, command string) (string, error)
	Owns(id schema.SessionID) bool
	CloseAll(ctx context.Context)
}

// transportRouter opens local profiles on the PTY transport and everything
// else over SSH, then routes each session call to its owner.
type transportRouter struct {
	local  SessionTransport
	remote SessionTransport
}

func (r transportRouter) Open(ctx context.Context, profile schema.Profile, cred schema.Credential, size schema.Dimensions) (schema.SessionID, error) {
	if profile.IsLocal() {
		if r.local == nil {
			return "", fmt.Errorf("%w: local shell transport disabled", schema.ErrIO)
		}
		return r.local.Open(ctx, profile, cred, size)
	}
	if r.remote == nil {
		return "", fmt.Errorf("%w: ssh transport disabled", schema.ErrIO)
	}
	return r.remote.Open(ctx, profile, cred, size)
}

func (r transportRouter) Write(ctx context.Context, id schema.SessionID, data []byte) error {
	t, err := r.owner(id)
	if err != nil {
		return err
	}
	return t.Write(ctx, id, data)
}

func (r transportRouter) Resize(ctx context.Context, id schema.SessionID, size schema.Dimensions) error {
	t, err := r.owner(id)
	if err != nil {
		return err
	}
	return t.Resize(ctx, id, size)
}

// Close is idempotent; closing an unknown session succeeds.
func (r transportRouter) Close(ctx context.Context, id schema.SessionID) error {
	t, err := r.owner(id)
	if err != nil {
		return nil
	}
	return t.Close(ctx, id)
}

func (r transportRouter) Exec(ctx context.Context, id schema.SessionID, command string) (string, error) {
	t, err := r.owner(id)
	if err != nil {
		return "", err
	}
	return t.Exec(ctx, id, command)
}

func (r transportRouter) CloseAll(ctx context.Context) {
	for _, t := range []SessionTransport{r.local, r.remote} {
		if t != nil {
			t.CloseAll(ctx)
		}
	}
}

func (r transportRouter) owner(id schema.SessionID) (SessionTransport, error) {
	for _, t := range []SessionTransport{r.local, r.remote} {
		if t != nil && t.Owns(id) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown session %s", schema.ErrIO, id)
}
