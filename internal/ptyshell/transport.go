// Package ptyshell runs the local login shell on a pseudo-terminal for
// profiles whose host is "local".
package ptyshell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const (
	readBufferSize = 32 * 1024
	killGrace      = 2 * time.Second
)

// Publisher receives session output.
type Publisher interface {
	Publish(ctx context.Context, event schema.OutputEvent) error
	Drop(id schema.SessionID)
}

// Config configures the local shell.
type Config struct {
	// Shell is the program to start. Empty means $SHELL, then /bin/sh.
	Shell string
	Term  string
	// Dir is the working directory. Empty means the user's home.
	Dir string
}

// Transport hosts local shells.
type Transport struct {
	cfg Config
	bus Publisher
	log pslog.Logger

	mu       sync.Mutex
	sessions map[schema.SessionID]*localSession
}

type localSession struct {
	id      schema.SessionID
	cmd     *exec.Cmd
	ptmx    *os.File
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	closing bool
	once    sync.Once
	done    chan struct{}
	exited  chan struct{}
}

// New constructs a Transport publishing output to bus.
func New(cfg Config, bus Publisher, logger pslog.Logger) *Transport {
	if strings.TrimSpace(cfg.Term) == "" {
		cfg.Term = "xterm-256color"
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Transport{
		cfg:      cfg,
		bus:      bus,
		log:      logger.With("transport", "pty"),
		sessions: make(map[schema.SessionID]*localSession),
	}
}

func (t *Transport) shell() string {
	if shell := strings.TrimSpace(t.cfg.Shell); shell != "" {
		return shell
	}
	if shell := strings.TrimSpace(os.Getenv("SHELL")); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// Open starts the shell on a new PTY. Profile and credential are not
// consulted beyond logging; the local shell runs as the current user.
func (t *Transport) Open(ctx context.Context, profile schema.Profile, _ schema.Credential, size schema.Dimensions) (schema.SessionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !size.Valid() {
		size = schema.Dimensions{Cols: 80, Rows: 24}
	}
	shell := t.shell()
	cmd := exec.Command(shell, "-l")
	cmd.Env = append(os.Environ(), "TERM="+t.cfg.Term)
	cmd.Dir = t.cfg.Dir
	if cmd.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cmd.Dir = home
		}
	}
	ptmx, err := pty.StartWithSize(cmd, winsize(size))
	if err != nil {
		return "", fmt.Errorf("start %s: %w", shell, err)
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &localSession{
		id:     schema.SessionID(uuid.NewString()),
		cmd:    cmd,
		ptmx:   ptmx,
		ctx:    sessCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(sess.exited)
	}()
	t.mu.Lock()
	t.sessions[sess.id] = sess
	t.mu.Unlock()
	t.log.With("session", sess.id).Info("local shell started", "profile", profile.Name, "shell", shell, "pid", cmd.Process.Pid)
	go t.pump(sess)
	return sess.id, nil
}

func winsize(size schema.Dimensions) *pty.Winsize {
	return &pty.Winsize{Cols: uint16(size.Cols), Rows: uint16(size.Rows)}
}

func (t *Transport) pump(sess *localSession) {
	defer close(sess.done)
	buf := make([]byte, readBufferSize)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if perr := t.bus.Publish(sess.ctx, schema.OutputEvent{SessionID: sess.id, Data: data}); perr != nil {
				return
			}
		}
		if err != nil {
			// Linux reports EIO on the master once the shell exits.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !t.isClosing(sess) {
				t.log.With("session", sess.id).Debug("pty read ended", "err", err)
			}
			break
		}
	}
	if t.isClosing(sess) {
		return
	}
	t.log.With("session", sess.id).Info("local shell exited")
	_ = t.bus.Publish(sess.ctx, schema.OutputEvent{SessionID: sess.id, EOF: true})
}

func (t *Transport) isClosing(sess *localSession) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sess.closing
}

func (t *Transport) session(id schema.SessionID) (*localSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess := t.sessions[id]
	if sess == nil {
		return nil, fmt.Errorf("%w: unknown session %s", schema.ErrIO, id)
	}
	return sess, nil
}

// Owns reports whether id belongs to this transport.
func (t *Transport) Owns(id schema.SessionID) bool {
	_, err := t.session(id)
	return err == nil
}

// Write sends bytes to the shell.
func (t *Transport) Write(ctx context.Context, id schema.SessionID, data []byte) error {
	sess, err := t.session(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_, err = sess.ptmx.Write(data)
	return err
}

// Resize sets the PTY window size.
func (t *Transport) Resize(_ context.Context, id schema.SessionID, size schema.Dimensions) error {
	if !size.Valid() {
		return nil
	}
	sess, err := t.session(id)
	if err != nil {
		return err
	}
	return pty.Setsize(sess.ptmx, winsize(size))
}

// Exec runs command with /bin/sh outside the interactive shell.
func (t *Transport) Exec(ctx context.Context, id schema.SessionID, command string) (string, error) {
	if _, err := t.session(id); err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) > 0 && ctx.Err() == nil {
			return string(out), nil
		}
		return "", err
	}
	return string(out), nil
}

// Close hangs up the shell. Closing an unknown session is a no-op.
func (t *Transport) Close(ctx context.Context, id schema.SessionID) error {
	t.mu.Lock()
	sess := t.sessions[id]
	delete(t.sessions, id)
	if sess != nil {
		sess.closing = true
	}
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.once.Do(func() {
		sess.cancel()
		_ = sess.ptmx.Close()
		if sess.cmd.Process != nil {
			_ = sess.cmd.Process.Signal(syscall.SIGHUP)
		}
		select {
		case <-sess.exited:
		case <-time.After(killGrace):
			_ = sess.cmd.Process.Kill()
		case <-ctx.Done():
			_ = sess.cmd.Process.Kill()
		}
		if t.bus != nil {
			t.bus.Drop(id)
		}
		t.log.With("session", id).Info("local shell closed")
	})
	return nil
}

// CloseAll hangs up every shell.
func (t *Transport) CloseAll(ctx context.Context) {
	t.mu.Lock()
	ids := make([]schema.SessionID, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		_ = t.Close(ctx, id)
	}
}
