package ptyshell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/ait/internal/eventbus"
	"pkt.systems/ait/schema"
)

func openShell(t *testing.T) (*Transport, schema.SessionID, <-chan schema.OutputEvent) {
	t.Helper()
	bus := eventbus.New(nil)
	tr := New(Config{Shell: "/bin/sh", Dir: t.TempDir()}, bus, nil)
	t.Cleanup(func() { tr.CloseAll(context.Background()) })
	id, err := tr.Open(context.Background(), schema.Profile{Name: "local", Host: schema.LocalHost}, schema.Credential{}, schema.Dimensions{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	events, _, unsubscribe := bus.Subscribe(id)
	t.Cleanup(unsubscribe)
	return tr, id, events
}

func collectUntil(t *testing.T, events <-chan schema.OutputEvent, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var got strings.Builder
	for {
		select {
		case event := <-events:
			got.Write(event.Data)
			if strings.Contains(got.String(), want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, got.String())
		}
	}
}

func TestLocalShellRunsCommands(t *testing.T) {
	tr, id, events := openShell(t)
	if err := tr.Write(context.Background(), id, []byte("echo sum-$((40+2))\r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	collectUntil(t, events, "sum-42")
}

func TestLocalShellResize(t *testing.T) {
	tr, id, events := openShell(t)
	if err := tr.Resize(context.Background(), id, schema.Dimensions{Cols: 101, Rows: 33}); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if err := tr.Write(context.Background(), id, []byte("stty size\r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	collectUntil(t, events, "33 101")
}

func TestLocalShellExitPublishesEOF(t *testing.T) {
	tr, id, events := openShell(t)
	if err := tr.Write(context.Background(), id, []byte("exit\r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if event.EOF {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for end of session")
		}
	}
}

func TestExecRunsOutOfBand(t *testing.T) {
	tr, id, _ := openShell(t)
	out, err := tr.Exec(context.Background(), id, "echo probe")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if strings.TrimSpace(out) != "probe" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCloseForgetsSession(t *testing.T) {
	tr, id, _ := openShell(t)
	if err := tr.Close(context.Background(), id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tr.Owns(id) {
		t.Fatalf("expected session forgotten")
	}
	if err := tr.Write(context.Background(), id, []byte("x")); !errors.Is(err, schema.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if err := tr.Close(context.Background(), id); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
