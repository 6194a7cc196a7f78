package core

import (
	"bytes"
	"strings"
	"time"

	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/schema"
)

// Anchor is the surface cell the dropdown hangs from.
type Anchor struct {
	Row int
	Col int
}

// OverlayView is the complete overlay state handed to the surface.
type OverlayView struct {
	// InlineRemainder is the ghost text after the typed line; empty means no
	// inline suggestion.
	InlineRemainder string
	DropdownOpen    bool
	Dropdown        []schema.CommandSuggestion
	Selected        int
	Anchor          Anchor
	AssistantOpen   bool
	Panel           PanelView
}

// overlayHost is the session side of the coordinator.
type overlayHost interface {
	profileID() schema.ProfileID
	connected() bool
	lineText() string
	// send writes synthetic input to the session and the line mirror.
	send(data []byte)
	cursor() (row, col int)
	render(view OverlayView)
}

// Coordinator owns the overlay state of one session and decides, key by key,
// whether the overlay consumes a key or the shell receives it.
type Coordinator struct {
	host        overlayHost
	disp        Dispatcher
	suggest     *SuggestionClient
	panel       *assistantPanel
	commitDelay time.Duration

	inline        *schema.CommandSuggestion
	dropdownOpen  bool
	dropdown      []schema.CommandSuggestion
	selected      int
	anchor        Anchor
	assistantOpen bool
	commitTimer   Timer
}

func newCoordinator(host overlayHost, disp Dispatcher, suggest *SuggestionClient, panel *assistantPanel, commitDelay time.Duration) *Coordinator {
	c := &Coordinator{
		host:        host,
		disp:        disp,
		suggest:     suggest,
		panel:       panel,
		commitDelay: commitDelay,
	}
	panel.render = c.render
	panel.insert = c.insertCommand
	return c
}

// View returns the current overlay state.
func (c *Coordinator) View() OverlayView {
	view := OverlayView{
		DropdownOpen:  c.dropdownOpen,
		Selected:      c.selected,
		Anchor:        c.anchor,
		AssistantOpen: c.assistantOpen,
	}
	if c.inline != nil && !c.dropdownOpen {
		view.InlineRemainder = c.remainder()
	}
	if c.dropdownOpen {
		view.Dropdown = append([]schema.CommandSuggestion(nil), c.dropdown...)
	}
	if c.assistantOpen {
		view.Panel = c.panel.view()
	}
	return view
}

func (c *Coordinator) render() {
	c.host.render(c.View())
}

func (c *Coordinator) remainder() string {
	if c.inline == nil {
		return ""
	}
	text := c.host.lineText()
	if !strings.HasPrefix(c.inline.Cmd, text) {
		return ""
	}
	return c.inline.Cmd[len(text):]
}

// HandleKey runs the interception chain and reports whether the key was
// consumed. Unconsumed keys belong to the shell.
func (c *Coordinator) HandleKey(k keyinput.Key) bool {
	switch {
	case k.Kind == keyinput.KindRight && k.Mod == 0 && c.inline != nil && !c.dropdownOpen:
		rem := c.remainder()
		if rem != "" {
			c.clearInline()
			c.host.send([]byte(rem))
			c.render()
			return true
		}
	case k.IsRune(' ', keyinput.ModShift):
		c.openDropdown()
		return true
	case k.IsRune(' ', keyinput.ModCtrl):
		c.toggleAssistant()
		return true
	case k.Kind == keyinput.KindEscape && k.Mod == 0:
		if c.dropdownOpen {
			c.closeDropdown()
			c.render()
			return true
		}
		if c.assistantOpen {
			c.assistantOpen = false
			c.render()
			return true
		}
		return false
	}
	if c.dropdownOpen {
		switch k.Kind {
		case keyinput.KindUp:
			if c.selected > 0 {
				c.selected--
			}
			c.render()
			return true
		case keyinput.KindDown:
			if c.selected < len(c.dropdown)-1 {
				c.selected++
			}
			c.render()
			return true
		case keyinput.KindLeft, keyinput.KindRight:
			return true
		case keyinput.KindEnter:
			c.commitSelected()
			return true
		}
	}
	if c.assistantOpen {
		c.panel.handleKey(k)
		return true
	}
	return false
}

// LineChanged reacts to a new mirrored line: stale inline text is dropped and
// a debounced inline query is scheduled.
func (c *Coordinator) LineChanged(text string) {
	if c.inline != nil && (!strings.HasPrefix(c.inline.Cmd, text) || len(text) >= len(c.inline.Cmd)) {
		c.clearInline()
	}
	if text == "" || c.dropdownOpen || !c.host.connected() {
		c.suggest.CancelInline()
		c.render()
		return
	}
	profile := c.host.profileID()
	c.suggest.ScheduleInline(profile, text, func() bool {
		return c.host.connected() && !c.dropdownOpen && c.host.lineText() == text
	}, func(set []schema.CommandSuggestion) {
		c.applyInline(text, set)
	})
	c.render()
}

func (c *Coordinator) applyInline(text string, set []schema.CommandSuggestion) {
	c.inline = nil
	if len(set) > 0 {
		s := set[0]
		if strings.HasPrefix(s.Cmd, text) && len(s.Cmd) > len(text) {
			c.inline = &s
		}
	}
	c.render()
}

func (c *Coordinator) clearInline() {
	c.inline = nil
}

func (c *Coordinator) openDropdown() {
	c.clearInline()
	c.suggest.CancelInline()
	row, col := c.host.cursor()
	anchor := Anchor{Row: row, Col: col}
	text := c.host.lineText()
	c.render()
	if !c.host.connected() {
		return
	}
	c.suggest.FetchDropdown(c.host.profileID(), text, c.host.connected, func(set []schema.CommandSuggestion) {
		if len(set) == 0 {
			if c.dropdownOpen {
				c.dropdownOpen = false
				c.dropdown = nil
				c.selected = 0
				c.render()
			}
			return
		}
		c.dropdown = set
		c.selected = 0
		c.anchor = anchor
		c.dropdownOpen = true
		c.render()
	})
}

func (c *Coordinator) closeDropdown() {
	c.dropdownOpen = false
	c.dropdown = nil
	c.selected = 0
	c.suggest.CancelDropdown()
}

func (c *Coordinator) commitSelected() {
	if c.selected < 0 || c.selected >= len(c.dropdown) {
		c.closeDropdown()
		c.render()
		return
	}
	cmd := c.dropdown[c.selected].Cmd
	c.closeDropdown()
	c.replaceLine(cmd)
	c.render()
}

// replaceLine erases the mirrored line, then types cmd after the commit delay
// so the shell has processed the erase burst. The command is not submitted.
func (c *Coordinator) replaceLine(cmd string) {
	if n := len(c.host.lineText()); n > 0 {
		c.host.send(bytes.Repeat([]byte{0x7f}, n))
	}
	if c.commitTimer != nil {
		c.commitTimer.Stop()
	}
	c.commitTimer = c.disp.AfterFunc(c.commitDelay, func() {
		c.commitTimer = nil
		if c.host.connected() {
			c.host.send([]byte(cmd))
		}
	})
}

func (c *Coordinator) toggleAssistant() {
	c.assistantOpen = !c.assistantOpen
	if c.assistantOpen {
		c.clearInline()
		c.suggest.CancelInline()
	}
	c.render()
}

func (c *Coordinator) insertCommand(cmd string) {
	cmd = strings.ReplaceAll(strings.TrimSpace(cmd), "\n", " && ")
	c.assistantOpen = false
	c.replaceLine(cmd)
	c.render()
}

// reset drops all overlay state; used when the session leaves Connected.
func (c *Coordinator) reset() {
	c.clearInline()
	c.suggest.CancelInline()
	c.closeDropdown()
	c.assistantOpen = false
	c.panel.cancel()
	if c.commitTimer != nil {
		c.commitTimer.Stop()
		c.commitTimer = nil
	}
	c.render()
}

// AssistantOpen reports whether the assistant panel is visible.
func (c *Coordinator) AssistantOpen() bool {
	return c.assistantOpen
}

// DropdownOpen reports whether the dropdown is visible.
func (c *Coordinator) DropdownOpen() bool {
	return c.dropdownOpen
}
