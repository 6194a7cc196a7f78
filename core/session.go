package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/internal/logx"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const (
	transportTimeout = 10 * time.Second
	probeTimeout     = 10 * time.Second
)

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Dispatcher  Dispatcher
	Transport   Transport
	Events      EventSource
	Credentials CredentialSource
	Suggestions SuggestionSource
	Cache       *SuggestionCache
	History     HistoryRecorder
	Macros      MacroSource
	Assistant   Assistant
	Config      schema.EngineConfig
}

// Controller drives one remote shell session: its lifecycle, the bytes sent
// to it and the output coming back. All methods must be called on the
// dispatcher's thread.
type Controller struct {
	ctx     context.Context
	cancel  context.CancelFunc
	deps    SessionDeps
	log     pslog.Logger
	profile schema.Profile
	surface Surface

	id      schema.SessionID
	state   schema.LifecycleState
	size    schema.Dimensions
	osName  string
	err     error
	opening bool
	closed  bool

	input   *InputBuffer
	suggest *SuggestionClient
	overlay *Coordinator

	unsubscribe func()
	probeTimer  Timer
	pending     [][]byte
	writing     bool

	// OnStateChange is called after the lifecycle state or OS name changes.
	OnStateChange func()
}

// NewController prepares a session for profile. Nothing is opened until
// Open is called.
func NewController(ctx context.Context, deps SessionDeps, profile schema.Profile, surface Surface) *Controller {
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		ctx:     ctx,
		cancel:  cancel,
		deps:    deps,
		log:     logx.WithProfile(ctx, profile.ID),
		profile: profile,
		surface: surface,
		state:   schema.StateConnecting,
		size:    deps.Config.DefaultSize,
	}
	c.input = &InputBuffer{
		OnCommandExecuted: c.commandExecuted,
	}
	c.suggest = NewSuggestionClient(ctx, deps.Dispatcher, deps.Suggestions, deps.Cache, deps.Config)
	panel := newAssistantPanel(ctx, deps.Dispatcher, deps.Assistant)
	panel.contextText = c.assistantContext
	c.overlay = newCoordinator(c, deps.Dispatcher, c.suggest, panel, deps.Config.CommitDelay)
	c.input.OnChange = c.overlay.LineChanged
	return c
}

// ID returns the session id once connected.
func (c *Controller) ID() schema.SessionID { return c.id }

// State returns the lifecycle state.
func (c *Controller) State() schema.LifecycleState { return c.state }

// Profile returns the profile the session was opened for.
func (c *Controller) Profile() schema.Profile { return c.profile }

// OSName returns the detected remote OS, if the probe succeeded.
func (c *Controller) OSName() string { return c.osName }

// Err returns the open failure, if any.
func (c *Controller) Err() error { return c.err }

// Line returns the mirrored command line.
func (c *Controller) Line() string { return c.input.Text() }

// Overlay returns the session's overlay coordinator.
func (c *Controller) Overlay() *Coordinator { return c.overlay }

// Size returns the last known grid size.
func (c *Controller) Size() schema.Dimensions { return c.size }

// Open starts connecting. The result is applied on the dispatcher thread; a
// failure is reported once and never retried.
func (c *Controller) Open() {
	if c.opening || c.closed || c.state != schema.StateConnecting {
		return
	}
	if err := schema.ValidateProfile(c.profile); err != nil {
		c.fail(err)
		return
	}
	c.opening = true
	profile := c.profile
	size := c.size
	needsCredential := !profile.IsLocal() && profile.AuthType != schema.AuthAgent
	c.log.Info("session opening", "host", profile.Host, "user", profile.User, "cols", size.Cols, "rows", size.Rows)
	c.deps.Dispatcher.Go(func() {
		var cred schema.Credential
		if needsCredential {
			var err error
			if c.deps.Credentials != nil {
				cred, err = c.deps.Credentials.Credential(c.ctx, profile)
			}
			if err == nil && cred.Empty() {
				err = schema.ErrMissingCredential
			}
			if err != nil {
				c.deps.Dispatcher.Post(func() { c.opened("", err) })
				return
			}
		}
		ctx, cancel := context.WithTimeout(c.ctx, transportTimeout)
		id, err := c.deps.Transport.Open(ctx, profile, cred, size)
		cancel()
		c.deps.Dispatcher.Post(func() { c.opened(id, err) })
	})
}

func (c *Controller) opened(id schema.SessionID, err error) {
	c.opening = false
	if c.closed {
		if err == nil && id != "" {
			c.log.Info("session opened after close", "session", id)
			c.closeTransport(id)
		}
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.id = id
	c.log = logx.WithSession(c.log, id)
	c.subscribe()
	c.state = schema.StateConnected
	c.log.Info("session connected")
	c.probeTimer = c.deps.Dispatcher.AfterFunc(c.deps.Config.ProbeDelay, c.probe)
	c.notify()
}

func (c *Controller) fail(err error) {
	if !errors.Is(err, schema.ErrConnection) {
		err = fmt.Errorf("%w: %w", schema.ErrConnection, err)
	}
	c.err = err
	c.state = schema.StateFailed
	c.log.Warn("session open failed", "err", err)
	c.surface.Write([]byte("\r\n[" + err.Error() + "]\r\n"))
	c.notify()
}

func (c *Controller) subscribe() {
	if c.deps.Events == nil {
		return
	}
	events, done, cancel := c.deps.Events.Subscribe(c.id)
	c.unsubscribe = cancel
	disp := c.deps.Dispatcher
	go func() {
		for {
			select {
			case <-done:
				return
			case event := <-events:
				disp.Post(func() { c.output(event) })
				if event.EOF {
					return
				}
			}
		}
	}()
}

// output applies one inbound event. Events for any other session id are
// dropped.
func (c *Controller) output(event schema.OutputEvent) {
	if c.closed || event.SessionID != c.id {
		return
	}
	if len(event.Data) > 0 {
		c.surface.Write(event.Data)
	}
	if event.EOF && c.state == schema.StateConnected {
		c.log.Info("session ended by remote")
		c.surface.Write([]byte("\r\n[session closed]\r\n"))
		c.state = schema.StateClosed
		c.stopProbe()
		c.overlay.reset()
		if c.unsubscribe != nil {
			c.unsubscribe()
			c.unsubscribe = nil
		}
		c.closeTransport(c.id)
		c.notify()
	}
}

func (c *Controller) probe() {
	c.probeTimer = nil
	if c.state != schema.StateConnected {
		return
	}
	id := c.id
	c.deps.Dispatcher.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, probeTimeout)
		out, err := c.deps.Transport.Exec(ctx, id, fingerprintCommand)
		cancel()
		c.deps.Dispatcher.Post(func() {
			if err != nil {
				c.log.Debug("os probe failed", "err", err)
				return
			}
			if c.closed || c.id != id {
				return
			}
			if name := ParseFingerprint(out); name != "" {
				c.osName = name
				c.log.Info("os detected", "os", name)
				c.notify()
			}
		})
	})
}

func (c *Controller) stopProbe() {
	if c.probeTimer != nil {
		c.probeTimer.Stop()
		c.probeTimer = nil
	}
}

// HandleKey routes one local key through the overlay; unconsumed keys are
// written to the session.
func (c *Controller) HandleKey(k keyinput.Key) {
	if c.overlay.HandleKey(k) {
		return
	}
	c.send(k.Raw)
}

// Write sends data to the session as if typed. Writes are dropped unless
// the session is connected and are delivered in call order.
func (c *Controller) Write(data []byte) {
	c.send(data)
}

func (c *Controller) send(data []byte) {
	if c.state != schema.StateConnected || len(data) == 0 {
		return
	}
	c.input.Feed(data)
	c.pending = append(c.pending, append([]byte(nil), data...))
	if !c.writing {
		c.flushWrites()
	}
}

// flushWrites keeps at most one write in flight so bytes reach the
// transport in order.
func (c *Controller) flushWrites() {
	if len(c.pending) == 0 {
		c.writing = false
		return
	}
	c.writing = true
	batch := c.pending
	c.pending = nil
	id := c.id
	c.deps.Dispatcher.Go(func() {
		for _, data := range batch {
			ctx, cancel := context.WithTimeout(c.ctx, transportTimeout)
			err := c.deps.Transport.Write(ctx, id, data)
			cancel()
			if err != nil {
				c.log.Warn("session write failed", "bytes", len(data), "err", fmt.Errorf("%w: %w", schema.ErrIO, err))
			}
		}
		c.deps.Dispatcher.Post(c.flushWrites)
	})
}

// Resize forwards the grid size to the session. Call it after the surface
// has been refitted.
func (c *Controller) Resize(size schema.Dimensions) {
	if !size.Valid() {
		return
	}
	c.size = size
	if c.state != schema.StateConnected {
		return
	}
	id := c.id
	c.deps.Dispatcher.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, transportTimeout)
		err := c.deps.Transport.Resize(ctx, id, size)
		cancel()
		if err != nil {
			c.log.Warn("session resize failed", "cols", size.Cols, "rows", size.Rows, "err", fmt.Errorf("%w: %w", schema.ErrIO, err))
		}
	})
}

// RunMacro types the command stored in slot followed by Enter.
func (c *Controller) RunMacro(slot string) {
	if c.deps.Macros == nil || c.state != schema.StateConnected {
		return
	}
	profileID := c.profile.ID
	c.deps.Dispatcher.Go(func() {
		macros, err := c.deps.Macros.Macros(c.ctx, profileID)
		c.deps.Dispatcher.Post(func() {
			if err != nil {
				c.log.Warn("macro lookup failed", "slot", slot, "err", err)
				return
			}
			cmd := macros[slot]
			if cmd == "" {
				c.log.Debug("macro slot empty", "slot", slot)
				return
			}
			c.send([]byte(cmd + "\r"))
		})
	})
}

// Close ends the session. It is idempotent and never fails; the transport
// close is best effort.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopProbe()
	c.overlay.reset()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.pending = nil
	if c.id != "" && c.state == schema.StateConnected {
		c.closeTransport(c.id)
	}
	c.state = schema.StateClosed
	c.log.Info("session closed")
	c.cancel()
	c.notify()
}

func (c *Controller) closeTransport(id schema.SessionID) {
	transport := c.deps.Transport
	log := c.log
	c.deps.Dispatcher.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), transportTimeout)
		defer cancel()
		if err := transport.Close(ctx, id); err != nil {
			log.Debug("session transport close failed", "err", err)
		}
	})
}

func (c *Controller) commandExecuted(cmd string) {
	if c.deps.History == nil {
		return
	}
	profileID := c.profile.ID
	cache := c.deps.Cache
	log := c.log
	c.deps.Dispatcher.Go(func() {
		if err := c.deps.History.SaveHistory(context.WithoutCancel(c.ctx), profileID, cmd); err != nil {
			log.Warn("history save failed", "err", err)
			return
		}
		cache.Invalidate(profileID)
	})
}

func (c *Controller) assistantContext() string {
	text := "Profile: " + c.profile.Name
	if !c.profile.IsLocal() {
		text += " (" + c.profile.User + "@" + c.profile.Host + ")"
	}
	if c.osName != "" {
		text += "\nOS: " + c.osName
	}
	if line := c.input.Text(); line != "" {
		text += "\nCurrent input: " + line
	}
	return text
}

func (c *Controller) notify() {
	if c.OnStateChange != nil {
		c.OnStateChange()
	}
}

func (c *Controller) profileID() schema.ProfileID { return c.profile.ID }

func (c *Controller) connected() bool { return c.state == schema.StateConnected && !c.closed }

func (c *Controller) lineText() string { return c.input.Text() }

func (c *Controller) cursor() (int, int) { return c.surface.Cursor() }

func (c *Controller) render(view OverlayView) { c.surface.OverlayChanged(view) }
