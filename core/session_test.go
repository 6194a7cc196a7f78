package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/ait/schema"
)

func TestControllerOpenConnects(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	if c.ID() != "sess-1" {
		t.Fatalf("expected session id sess-1, got %q", c.ID())
	}
	if env.transport.opens != 1 {
		t.Fatalf("expected one open, got %d", env.transport.opens)
	}
	if env.transport.creds[0].Password != "secret" {
		t.Fatalf("expected credential passed to transport")
	}
}

func TestControllerMissingCredentialSkipsTransport(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Credentials = stubCredentials{}
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.Open()
	env.disp.Flush()
	if c.State() != schema.StateFailed {
		t.Fatalf("expected failed, got %s", c.State())
	}
	if !errors.Is(c.Err(), schema.ErrConnection) || !errors.Is(c.Err(), schema.ErrMissingCredential) {
		t.Fatalf("expected connection error wrapping missing credential, got %v", c.Err())
	}
	if env.transport.opens != 0 {
		t.Fatalf("transport must not be contacted, got %d opens", env.transport.opens)
	}
	if !strings.Contains(env.surface.output(), "missing credential") {
		t.Fatalf("expected failure shown on surface, got %q", env.surface.output())
	}
}

func TestControllerAgentAuthNeedsNoCredential(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Credentials = stubCredentials{}
	profile := testProfile()
	profile.AuthType = schema.AuthAgent
	c := NewController(context.Background(), env.deps, profile, env.surface)
	c.Open()
	env.disp.Flush()
	if c.State() != schema.StateConnected {
		t.Fatalf("expected connected, got %s (%v)", c.State(), c.Err())
	}
}

func TestControllerTransportRejectionIsReportedOnce(t *testing.T) {
	env := newTestEnv(t)
	env.transport.openErr = errors.New("ssh: handshake failed: unable to authenticate")
	changes := 0
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.OnStateChange = func() { changes++ }
	c.Open()
	env.disp.Flush()
	c.Open()
	env.disp.Flush()
	if c.State() != schema.StateFailed {
		t.Fatalf("expected failed, got %s", c.State())
	}
	if !errors.Is(c.Err(), schema.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", c.Err())
	}
	if !strings.Contains(c.Err().Error(), "unable to authenticate") {
		t.Fatalf("expected transport message verbatim, got %v", c.Err())
	}
	if env.transport.opens != 1 {
		t.Fatalf("expected no retry, got %d opens", env.transport.opens)
	}
	if changes != 1 {
		t.Fatalf("expected one state change, got %d", changes)
	}
}

func TestControllerInvalidProfileFails(t *testing.T) {
	env := newTestEnv(t)
	profile := testProfile()
	profile.User = ""
	c := NewController(context.Background(), env.deps, profile, env.surface)
	c.Open()
	env.disp.Flush()
	if c.State() != schema.StateFailed || !errors.Is(c.Err(), schema.ErrInvalidProfile) {
		t.Fatalf("expected invalid profile failure, got %s %v", c.State(), c.Err())
	}
}

func TestControllerWritesDroppedUntilConnected(t *testing.T) {
	env := newTestEnv(t)
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.Write([]byte("early"))
	c.Open()
	env.disp.Flush()
	c.Write([]byte("ls"))
	c.Write([]byte("\r"))
	env.disp.Flush()
	if got := env.transport.written(); got != "ls\r" {
		t.Fatalf("expected ls\\r, got %q", got)
	}
}

func TestControllerWritesKeepOrder(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	for _, chunk := range []string{"a", "b", "c", "d"} {
		c.Write([]byte(chunk))
	}
	env.disp.Flush()
	if got := env.transport.written(); got != "abcd" {
		t.Fatalf("expected abcd, got %q", got)
	}
}

func TestControllerWriteErrorsAreNotSurfaced(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	env.transport.writeErr = errors.New("broken pipe")
	c.Write([]byte("x"))
	env.disp.Flush()
	if c.State() != schema.StateConnected {
		t.Fatalf("write failure must not change state, got %s", c.State())
	}
}

func TestControllerRendersInboundOutput(t *testing.T) {
	env := newTestEnv(t)
	env.connected(t)
	ctx := context.Background()
	_ = env.bus.Publish(ctx, schema.OutputEvent{SessionID: "sess-other", Data: []byte("intruder")})
	_ = env.bus.Publish(ctx, schema.OutputEvent{SessionID: "sess-1", Data: []byte("hello ")})
	_ = env.bus.Publish(ctx, schema.OutputEvent{SessionID: "sess-1", Data: []byte("world")})
	env.disp.FlushUntil(t, func() bool { return strings.Contains(env.surface.output(), "hello world") })
	if strings.Contains(env.surface.output(), "intruder") {
		t.Fatalf("output of another session leaked: %q", env.surface.output())
	}
}

func TestControllerDropsMismatchedSessionEvents(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	c.output(schema.OutputEvent{SessionID: "sess-2", Data: []byte("nope")})
	if env.surface.output() != "" {
		t.Fatalf("expected mismatched event dropped, got %q", env.surface.output())
	}
}

func TestControllerRemoteEOFClosesSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	_ = env.bus.Publish(context.Background(), schema.OutputEvent{SessionID: "sess-1", EOF: true})
	env.disp.FlushUntil(t, func() bool { return c.State() == schema.StateClosed })
	if !strings.Contains(env.surface.output(), "[session closed]") {
		t.Fatalf("expected closed marker, got %q", env.surface.output())
	}
	c.Write([]byte("ls"))
	env.disp.Flush()
	if env.transport.written() != "" {
		t.Fatalf("expected no writes after remote close")
	}
	c.Close()
	env.disp.Flush()
	if len(env.transport.closed) != 1 {
		t.Fatalf("expected the transport released once, got %v", env.transport.closed)
	}
}

func TestControllerProbeDetectsOS(t *testing.T) {
	env := newTestEnv(t)
	env.transport.execOut = "PRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\n"
	c := env.connected(t)
	changes := 0
	c.OnStateChange = func() { changes++ }
	env.disp.Advance(999 * time.Millisecond)
	if len(env.transport.execs) != 0 {
		t.Fatalf("probe ran early")
	}
	env.disp.Advance(time.Millisecond)
	if len(env.transport.execs) != 1 || env.transport.execs[0] != fingerprintCommand {
		t.Fatalf("expected fingerprint exec, got %v", env.transport.execs)
	}
	if c.OSName() != "Debian GNU/Linux 12 (bookworm)" {
		t.Fatalf("unexpected os %q", c.OSName())
	}
	if changes != 1 {
		t.Fatalf("expected one change notification, got %d", changes)
	}
}

func TestControllerProbeFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.transport.execErr = errors.New("exec refused")
	c := env.connected(t)
	env.disp.Advance(2 * time.Second)
	if c.State() != schema.StateConnected || c.OSName() != "" {
		t.Fatalf("probe failure must be silent, got %s %q", c.State(), c.OSName())
	}
}

func TestControllerCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	c.Close()
	c.Close()
	env.disp.Flush()
	if c.State() != schema.StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
	if len(env.transport.closed) != 1 || env.transport.closed[0] != "sess-1" {
		t.Fatalf("expected a single transport close, got %v", env.transport.closed)
	}
	env.disp.Advance(2 * time.Second)
	if len(env.transport.execs) != 0 {
		t.Fatalf("probe must not run after close")
	}
}

func TestControllerLateOpenAfterCloseIsReleased(t *testing.T) {
	env := newTestEnv(t)
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.Open()
	c.Close()
	env.disp.Flush()
	if c.State() != schema.StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
	if len(env.transport.closed) != 1 {
		t.Fatalf("expected late session to be closed, got %v", env.transport.closed)
	}
}

func TestControllerResize(t *testing.T) {
	env := newTestEnv(t)
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.Resize(schema.Dimensions{Cols: 120, Rows: 40})
	if len(env.transport.resizes) != 0 {
		t.Fatalf("resize must not reach the transport before connect")
	}
	c.Open()
	env.disp.Flush()
	c.Resize(schema.Dimensions{Cols: 0, Rows: 10})
	c.Resize(schema.Dimensions{Cols: 100, Rows: 30})
	if len(env.transport.resizes) != 1 || env.transport.resizes[0] != (schema.Dimensions{Cols: 100, Rows: 30}) {
		t.Fatalf("unexpected resizes %v", env.transport.resizes)
	}
	if c.Size() != (schema.Dimensions{Cols: 100, Rows: 30}) {
		t.Fatalf("unexpected size %v", c.Size())
	}
}

func TestControllerSavesExecutedCommands(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	env.typeText(c, "git status")
	c.HandleKey(enterKey())
	env.disp.Flush()
	if len(env.history.saved) != 1 || env.history.saved[0] != "git status" {
		t.Fatalf("expected history save, got %v", env.history.saved)
	}
	if got := env.transport.written(); got != "git status\r" {
		t.Fatalf("expected keystrokes forwarded, got %q", got)
	}
}

func TestControllerRunMacro(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	c.RunMacro("1")
	c.RunMacro("2")
	env.disp.Flush()
	if got := env.transport.written(); got != "uptime\r" {
		t.Fatalf("expected macro typed with enter, got %q", got)
	}
	if len(env.history.saved) != 1 || env.history.saved[0] != "uptime" {
		t.Fatalf("expected macro recorded in history, got %v", env.history.saved)
	}
}
