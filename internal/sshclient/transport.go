package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const readBufferSize = 32 * 1024

// Publisher receives session output.
type Publisher interface {
	Publish(ctx context.Context, event schema.OutputEvent) error
	Drop(id schema.SessionID)
}

// Config configures the SSH transport.
type Config struct {
	// KnownHostsPath is consulted and extended on first contact with a host.
	KnownHostsPath string
	DialTimeout    time.Duration
	Term           string
	// AgentSocket is the ssh-agent socket used by agent-auth profiles.
	// Empty means SSH_AUTH_SOCK.
	AgentSocket string
	// HostKeyCallback overrides known_hosts verification when set.
	HostKeyCallback ssh.HostKeyCallback
	// Now supplies the clock for one-time codes.
	Now func() time.Time
}

// Transport opens interactive shells over SSH.
type Transport struct {
	cfg Config
	bus Publisher
	log pslog.Logger

	mu       sync.Mutex
	sessions map[schema.SessionID]*remoteSession
	hostMu   sync.Mutex
}

type remoteSession struct {
	id      schema.SessionID
	client  *ssh.Client
	shell   *ssh.Session
	stdin   io.WriteCloser
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// New constructs a Transport publishing output to bus.
func New(cfg Config, bus Publisher, logger pslog.Logger) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Term) == "" {
		cfg.Term = "xterm-256color"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Transport{
		cfg:      cfg,
		bus:      bus,
		log:      logger.With("transport", "ssh"),
		sessions: make(map[schema.SessionID]*remoteSession),
	}
}

// Open dials the profile's host, authenticates and starts a login shell on
// a PTY of the given size.
func (t *Transport) Open(ctx context.Context, profile schema.Profile, cred schema.Credential, size schema.Dimensions) (schema.SessionID, error) {
	if !size.Valid() {
		size = schema.Dimensions{Cols: 80, Rows: 24}
	}
	addr := profile.Addr()
	log := t.log.With("host", addr, "user", profile.User)

	auth, release, err := t.authMethods(profile, cred)
	if err != nil {
		return "", err
	}
	defer release()

	hostKeys := t.cfg.HostKeyCallback
	if hostKeys == nil {
		hostKeys, err = t.knownHostsCallback()
		if err != nil {
			return "", err
		}
	}

	client, err := t.dial(ctx, addr, &ssh.ClientConfig{
		User:            profile.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         t.cfg.DialTimeout,
	})
	if err != nil {
		log.Warn("ssh dial failed", "err", err)
		return "", err
	}

	shell, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return "", fmt.Errorf("new session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := shell.RequestPty(t.cfg.Term, size.Rows, size.Cols, modes); err != nil {
		_ = shell.Close()
		_ = client.Close()
		return "", fmt.Errorf("request pty: %w", err)
	}
	stdin, err := shell.StdinPipe()
	if err != nil {
		_ = shell.Close()
		_ = client.Close()
		return "", err
	}
	stdout, err := shell.StdoutPipe()
	if err != nil {
		_ = shell.Close()
		_ = client.Close()
		return "", err
	}
	if err := shell.Shell(); err != nil {
		_ = shell.Close()
		_ = client.Close()
		return "", fmt.Errorf("start shell: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &remoteSession{
		id:     schema.SessionID(uuid.NewString()),
		client: client,
		shell:  shell,
		stdin:  stdin,
		ctx:    sessCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.mu.Lock()
	t.sessions[sess.id] = sess
	t.mu.Unlock()
	log.With("session", sess.id).Info("ssh session opened", "cols", size.Cols, "rows", size.Rows)
	go t.pump(sess, stdout)
	return sess.id, nil
}

func (t *Transport) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() {
		if err == nil {
			_ = c.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// pump copies shell output to the bus until the remote side ends.
func (t *Transport) pump(sess *remoteSession, stdout io.Reader) {
	defer close(sess.done)
	log := t.log.With("session", sess.id)
	buf := make([]byte, readBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if perr := t.bus.Publish(sess.ctx, schema.OutputEvent{SessionID: sess.id, Data: data}); perr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !sess.closing.Load() {
				log.Debug("ssh read ended", "err", err)
			}
			break
		}
	}
	if sess.closing.Load() {
		return
	}
	log.Info("ssh session ended by remote")
	_ = t.bus.Publish(sess.ctx, schema.OutputEvent{SessionID: sess.id, EOF: true})
}

func (t *Transport) session(id schema.SessionID) (*remoteSession, error) {
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
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	return ok
}

// Write sends bytes to the shell's stdin. Writes to one session are
// serialized.
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
	_, err = sess.stdin.Write(data)
	return err
}

// Resize sends a window-change request.
func (t *Transport) Resize(_ context.Context, id schema.SessionID, size schema.Dimensions) error {
	if !size.Valid() {
		return nil
	}
	sess, err := t.session(id)
	if err != nil {
		return err
	}
	return sess.shell.WindowChange(size.Rows, size.Cols)
}

// Exec runs command in a separate channel on the session's connection and
// returns its combined output.
func (t *Transport) Exec(ctx context.Context, id schema.SessionID, command string) (string, error) {
	sess, err := t.session(id)
	if err != nil {
		return "", err
	}
	probe, err := sess.client.NewSession()
	if err != nil {
		return "", err
	}
	defer probe.Close()
	stop := context.AfterFunc(ctx, func() { _ = probe.Close() })
	defer stop()
	out, err := probe.CombinedOutput(command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) && len(out) > 0 {
			return string(out), nil
		}
		return "", err
	}
	return string(out), nil
}

// Close ends the session and releases its connection. Closing an unknown
// session is a no-op.
func (t *Transport) Close(ctx context.Context, id schema.SessionID) error {
	t.mu.Lock()
	sess := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if sess == nil {
		return nil
	}
	var err error
	sess.once.Do(func() {
		sess.closing.Store(true)
		sess.cancel()
		_ = sess.shell.Close()
		err = sess.client.Close()
		select {
		case <-sess.done:
		case <-ctx.Done():
		}
		if t.bus != nil {
			t.bus.Drop(id)
		}
		t.log.With("session", id).Info("ssh session closed")
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// CloseAll ends every open session.
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
