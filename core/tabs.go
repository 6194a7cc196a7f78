package core

import (
	"context"
	"fmt"

	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/internal/logx"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

// Tab pairs a session with its surface.
type Tab struct {
	ID         schema.TabID
	Controller *Controller
	Surface    Surface
}

// Title is the profile name, suffixed with the detected OS once known.
func (t *Tab) Title() string {
	title := t.Controller.Profile().Name
	if os := t.Controller.OSName(); os != "" {
		title += " · " + os
	}
	return title
}

// SurfaceFactory creates the emulation surface for a new tab.
type SurfaceFactory func(id schema.TabID, profile schema.Profile) Surface

// Multiplexer keeps an ordered list of tabs with at most one active. Inactive
// tabs keep receiving output into their own surfaces.
type Multiplexer struct {
	ctx        context.Context
	deps       SessionDeps
	newSurface SurfaceFactory
	log        pslog.Logger

	tabs   []*Tab
	active schema.TabID

	// OnChange is called after tabs are added, removed or activated, or a
	// session changes state.
	OnChange func()
}

// NewMultiplexer constructs an empty multiplexer.
func NewMultiplexer(ctx context.Context, deps SessionDeps, newSurface SurfaceFactory) *Multiplexer {
	return &Multiplexer{
		ctx:        ctx,
		deps:       deps,
		newSurface: newSurface,
		log:        pslog.Ctx(ctx),
	}
}

// Connect opens a new tab for profile, appends it and activates it.
func (m *Multiplexer) Connect(profile schema.Profile) *Tab {
	id := newTabID()
	ctx := logx.ContextWithProfileTabLogger(m.ctx, logx.WithProfileTab(m.ctx, profile.ID, id), profile.ID, id)
	surface := m.newSurface(id, profile)
	tab := &Tab{
		ID:         id,
		Controller: NewController(ctx, m.deps, profile, surface),
		Surface:    surface,
	}
	tab.Controller.OnStateChange = m.changed
	m.tabs = append(m.tabs, tab)
	prev := m.active
	m.active = id
	m.log.Info("tab opened", "tab", id, "profile", profile.ID, "from", prev)
	tab.Controller.Open()
	m.changed()
	return tab
}

// Activate makes id the visible tab.
func (m *Multiplexer) Activate(id schema.TabID) error {
	if m.index(id) < 0 {
		return schema.ErrTabNotFound
	}
	if m.active == id {
		return nil
	}
	m.log.Info("tab switched", "from", m.active, "to", id)
	m.active = id
	m.changed()
	return nil
}

// Close ends the tab's session and removes it. Closing the active tab
// activates the previous tab, else the first remaining one.
func (m *Multiplexer) Close(id schema.TabID) error {
	idx := m.index(id)
	if idx < 0 {
		return schema.ErrTabNotFound
	}
	tab := m.tabs[idx]
	tab.Controller.Close()
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)
	if m.active == id {
		switch {
		case len(m.tabs) == 0:
			m.active = ""
		case idx > 0:
			m.active = m.tabs[idx-1].ID
		default:
			m.active = m.tabs[0].ID
		}
	}
	m.log.Info("tab closed", "tab", id, "active", m.active, "remaining", len(m.tabs))
	m.changed()
	return nil
}

// CloseAll closes every tab.
func (m *Multiplexer) CloseAll() {
	for len(m.tabs) > 0 {
		_ = m.Close(m.tabs[len(m.tabs)-1].ID)
	}
}

// Cycle moves activation by step, wrapping around.
func (m *Multiplexer) Cycle(step int) {
	if len(m.tabs) == 0 || step == 0 {
		return
	}
	idx := m.index(m.active)
	var next int
	if idx < 0 {
		if step < 0 {
			next = len(m.tabs) - 1
		}
	} else {
		next = idx + step
		for next < 0 {
			next += len(m.tabs)
		}
		next %= len(m.tabs)
	}
	_ = m.Activate(m.tabs[next].ID)
}

// Active returns the active tab or nil.
func (m *Multiplexer) Active() *Tab {
	if idx := m.index(m.active); idx >= 0 {
		return m.tabs[idx]
	}
	return nil
}

// Tab returns the tab with id.
func (m *Multiplexer) Tab(id schema.TabID) (*Tab, error) {
	idx := m.index(id)
	if idx < 0 {
		return nil, schema.ErrTabNotFound
	}
	return m.tabs[idx], nil
}

// Len returns the number of open tabs.
func (m *Multiplexer) Len() int {
	return len(m.tabs)
}

// Snapshots returns read-only views of all tabs in order.
func (m *Multiplexer) Snapshots() []schema.TabSnapshot {
	out := make([]schema.TabSnapshot, 0, len(m.tabs))
	for _, tab := range m.tabs {
		out = append(out, schema.TabSnapshot{
			ID:        tab.ID,
			Title:     tab.Title(),
			ProfileID: tab.Controller.Profile().ID,
			SessionID: tab.Controller.ID(),
			State:     tab.Controller.State(),
			Active:    tab.ID == m.active,
		})
	}
	return out
}

// Workspace returns the open profiles for restoring on the next start.
func (m *Multiplexer) Workspace() schema.TabsSnapshot {
	snap := schema.TabsSnapshot{}
	for i, tab := range m.tabs {
		snap.Profiles = append(snap.Profiles, tab.Controller.Profile().ID)
		if tab.ID == m.active {
			snap.ActiveIdx = i
		}
	}
	return snap
}

// HandleKey applies global shortcuts and routes everything else to the
// active session.
//
//	alt+w        close the active tab
//	alt+]  alt+[ next and previous tab
//	alt+t        duplicate the active tab
//	ctrl+1..0    run macro 1..10 (alt+digit when the assistant is closed)
func (m *Multiplexer) HandleKey(k keyinput.Key) {
	active := m.Active()
	switch {
	case k.IsRune('w', keyinput.ModAlt):
		if active != nil {
			_ = m.Close(active.ID)
		}
		return
	case k.IsRune(']', keyinput.ModAlt):
		m.Cycle(1)
		return
	case k.IsRune('[', keyinput.ModAlt):
		m.Cycle(-1)
		return
	case k.IsRune('t', keyinput.ModAlt):
		if active != nil {
			m.Connect(active.Controller.Profile())
		}
		return
	}
	if active == nil {
		return
	}
	if slot, ok := macroSlot(k, active.Controller.Overlay().AssistantOpen()); ok {
		active.Controller.RunMacro(slot)
		return
	}
	active.Controller.HandleKey(k)
}

func macroSlot(k keyinput.Key, assistantOpen bool) (string, bool) {
	if k.Kind != keyinput.KindRune || k.Rune < '0' || k.Rune > '9' {
		return "", false
	}
	switch {
	case k.Mod == keyinput.ModCtrl:
	case k.Mod == keyinput.ModAlt && !assistantOpen:
	default:
		return "", false
	}
	if k.Rune == '0' {
		return "10", true
	}
	return fmt.Sprint(k.Rune - '0'), true
}

// Resize forwards a new grid size to every session.
func (m *Multiplexer) Resize(size schema.Dimensions) {
	m.deps.Config.DefaultSize = size
	for _, tab := range m.tabs {
		tab.Controller.Resize(size)
	}
}

func (m *Multiplexer) index(id schema.TabID) int {
	if id == "" {
		return -1
	}
	for i, tab := range m.tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

func (m *Multiplexer) changed() {
	if m.OnChange != nil {
		m.OnChange()
	}
}
