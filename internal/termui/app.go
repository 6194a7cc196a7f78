package termui

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"pkt.systems/ait/core"
	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const (
	enterScreen     = "\x1b[?1049h\x1b[?2004h\x1b[H\x1b[2J"
	leaveScreen     = "\x1b[?2004l\x1b[0m\x1b[?25h\x1b[?1049l"
	enableKeyReport = "\x1b[>1u"
	resetKeyReport  = "\x1b[<u"
	shutdownTimeout = 3 * time.Second
)

// WorkspaceSaver records the open tabs for restoring later.
type WorkspaceSaver interface {
	Save(snapshot schema.TabsSnapshot) error
}

// Config configures the interactive front end.
type Config struct {
	In  *os.File
	Out *os.File
	// EnhancedKeys requests CSI-u key reports from the terminal.
	EnhancedKeys bool
	Workspace    WorkspaceSaver
}

// App drives the multiplexer from a raw local terminal.
type App struct {
	cfg  Config
	deps core.SessionDeps
	log  pslog.Logger

	out      io.Writer
	size     schema.Dimensions
	mux      *core.Multiplexer
	surfaces map[schema.TabID]*Surface
	shown    schema.TabID
	title    string
	stopping bool

	quitOnce sync.Once
	quit     chan struct{}
}

// New constructs an App. deps.Dispatcher is replaced by the App's own loop.
func New(cfg Config, deps core.SessionDeps) *App {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &App{
		cfg:      cfg,
		deps:     deps,
		out:      cfg.Out,
		surfaces: make(map[schema.TabID]*Surface),
		quit:     make(chan struct{}),
	}
}

// Run opens a tab per profile, activates profiles[activeIdx] and serves the
// terminal until every tab is closed, alt+q is pressed or ctx ends.
func (a *App) Run(ctx context.Context, profiles []schema.Profile, activeIdx int) error {
	if len(profiles) == 0 {
		return errors.New("no profiles to connect")
	}
	inFd := int(a.cfg.In.Fd())
	if !term.IsTerminal(inFd) {
		return errors.New("stdin is not a terminal")
	}
	a.log = pslog.Ctx(ctx).With("ui", "terminal")
	cols, rows, err := term.GetSize(int(a.cfg.Out.Fd()))
	if err != nil {
		return err
	}
	a.size = schema.Dimensions{Cols: cols, Rows: rows}
	a.deps.Config.DefaultSize = a.size

	saved, err := term.MakeRaw(inFd)
	if err != nil {
		return err
	}
	defer func() { _ = term.Restore(inFd, saved) }()
	a.writeString(enterScreen)
	if a.cfg.EnhancedKeys {
		a.writeString(enableKeyReport)
	}
	defer func() {
		if a.cfg.EnhancedKeys {
			a.writeString(resetKeyReport)
		}
		a.writeString(leaveScreen)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := core.NewLoop()
	a.deps.Dispatcher = loop
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(runCtx)
	}()

	a.mux = core.NewMultiplexer(runCtx, a.deps, a.newSurface)
	a.mux.OnChange = a.changed
	loop.Post(func() {
		var activate schema.TabID
		for i, profile := range profiles {
			tab := a.mux.Connect(profile)
			if i == activeIdx {
				activate = tab.ID
			}
		}
		if activate != "" {
			_ = a.mux.Activate(activate)
		}
	})
	a.log.Info("terminal ui started", "tabs", len(profiles), "cols", cols, "rows", rows)

	go a.readInput(loop)
	stopResize := a.watchResize(loop)
	defer stopResize()

	select {
	case <-a.quit:
	case <-ctx.Done():
	}
	a.shutdown(loop)
	cancel()
	<-loopDone
	a.log.Info("terminal ui stopped")
	return nil
}

func (a *App) newSurface(id schema.TabID, _ schema.Profile) core.Surface {
	s := newSurface(id, a.out, a.size)
	a.surfaces[id] = s
	return s
}

// readInput decodes stdin until it fails. The goroutine is abandoned on
// shutdown since a blocked terminal read cannot be interrupted.
func (a *App) readInput(loop *core.Loop) {
	buf := make([]byte, 4096)
	for {
		n, err := a.cfg.In.Read(buf)
		if n > 0 {
			keys := keyinput.Decode(buf[:n])
			loop.Post(func() {
				for _, k := range keys {
					a.handleKey(k)
				}
			})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.log.Warn("terminal read failed", "err", err)
			}
			a.stop()
			return
		}
	}
}

func (a *App) handleKey(k keyinput.Key) {
	switch {
	case k.IsRune('q', keyinput.ModAlt):
		a.stop()
	case k.Kind == keyinput.KindCursorReport:
	default:
		a.mux.HandleKey(k)
	}
}

func (a *App) watchResize(loop *core.Loop) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				cols, rows, err := term.GetSize(int(a.cfg.Out.Fd()))
				if err != nil {
					continue
				}
				size := schema.Dimensions{Cols: cols, Rows: rows}
				loop.Post(func() { a.resize(size) })
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// resize refits every surface before the sessions see the new size, then
// repaints the visible one.
func (a *App) resize(size schema.Dimensions) {
	if !size.Valid() || size == a.size {
		return
	}
	a.size = size
	for _, s := range a.surfaces {
		s.Resize(size)
	}
	a.mux.Resize(size)
	if s := a.surfaces[a.shown]; s != nil {
		s.activate()
	}
	a.log.Debug("terminal resized", "cols", size.Cols, "rows", size.Rows)
}

// changed runs on the loop after any tab or session change.
func (a *App) changed() {
	for id := range a.surfaces {
		if _, err := a.mux.Tab(id); err != nil {
			delete(a.surfaces, id)
		}
	}
	var active schema.TabID
	if tab := a.mux.Active(); tab != nil {
		active = tab.ID
	}
	if active != a.shown {
		if prev := a.surfaces[a.shown]; prev != nil {
			prev.deactivate()
		}
		a.shown = active
		if next := a.surfaces[active]; next != nil {
			next.activate()
		}
	}
	if title := titleFor(a.mux.Snapshots()); title != a.title {
		a.title = title
		a.writeString("\x1b]0;" + title + "\x07")
	}
	if a.stopping {
		return
	}
	if a.cfg.Workspace != nil {
		if err := a.cfg.Workspace.Save(a.mux.Workspace()); err != nil {
			a.log.Warn("workspace save failed", "err", err)
		}
	}
	if a.mux.Len() == 0 {
		a.stop()
	}
}

// shutdown closes every tab on the loop and waits for the transports to
// release.
func (a *App) shutdown(loop *core.Loop) {
	closed := make(chan struct{})
	loop.Post(func() {
		a.stopping = true
		a.mux.CloseAll()
		close(closed)
	})
	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	select {
	case <-closed:
	case <-timer.C:
		a.log.Warn("tab shutdown timed out")
		return
	}
	waited := make(chan struct{})
	go func() {
		loop.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-timer.C:
		a.log.Warn("session close timed out")
	}
}

func (a *App) stop() {
	a.quitOnce.Do(func() { close(a.quit) })
}

func (a *App) writeString(s string) {
	_, _ = io.WriteString(a.out, s)
}
