package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const (
	assistantTimeout = 90 * time.Second
	panelRows        = 12
)

// PanelView is what the assistant panel renders.
type PanelView struct {
	Question string
	Cursor   int
	Lines    []string
	Busy     bool
	Commands []string
	AtBottom bool
}

// assistantPanel is the question editor and transcript shown while the
// assistant overlay is open.
type assistantPanel struct {
	ctx       context.Context
	disp      Dispatcher
	assistant Assistant
	log       pslog.Logger

	editor     keyinput.LineEditor
	history    *historyBuffer
	transcript *buffer
	busy       bool
	gen        uint64
	commands   []string

	// contextText returns the session context sent with each question.
	contextText func() string
	// insert places a command on the shell's input line.
	insert func(cmd string)
	render func()
}

func newAssistantPanel(ctx context.Context, disp Dispatcher, assistant Assistant) *assistantPanel {
	return &assistantPanel{
		ctx:        ctx,
		disp:       disp,
		assistant:  assistant,
		log:        pslog.Ctx(ctx),
		history:    newHistory(0),
		transcript: newBuffer(),
	}
}

func (p *assistantPanel) view() PanelView {
	snap := p.transcript.Snapshot(panelRows)
	return PanelView{
		Question: p.editor.String(),
		Cursor:   p.editor.Cursor(),
		Lines:    snap.Lines,
		Busy:     p.busy,
		Commands: append([]string(nil), p.commands...),
		AtBottom: snap.AtBottom,
	}
}

// handleKey consumes every key while the panel is open.
func (p *assistantPanel) handleKey(k keyinput.Key) {
	switch {
	case k.Kind == keyinput.KindEnter:
		p.ask(p.editor.String())
	case k.Kind == keyinput.KindUp:
		if entry, ok := p.history.Prev(p.editor.String()); ok {
			p.editor.SetString(entry)
		}
	case k.Kind == keyinput.KindDown:
		if entry, ok := p.history.Next(); ok {
			p.editor.SetString(entry)
		}
	case k.Kind == keyinput.KindPageUp:
		p.transcript.Scroll(panelRows-1, panelRows)
	case k.Kind == keyinput.KindPageDown:
		p.transcript.Scroll(-(panelRows - 1), panelRows)
	case k.IsRune('c', keyinput.ModCtrl):
		p.editor.Clear()
	case k.Kind == keyinput.KindRune && k.Mod == keyinput.ModAlt && k.Rune >= '1' && k.Rune <= '9':
		idx := int(k.Rune - '1')
		if idx < len(p.commands) && p.insert != nil {
			p.insert(p.commands[idx])
			return
		}
	default:
		p.editor.Apply(k)
	}
	p.changed()
}

func (p *assistantPanel) changed() {
	if p.render != nil {
		p.render()
	}
}

func (p *assistantPanel) ask(question string) {
	question = strings.TrimSpace(question)
	if question == "" || p.busy {
		return
	}
	p.history.Append(question)
	p.editor.Clear()
	p.transcript.ResetScroll()
	p.transcript.Append("> " + question)
	if p.assistant == nil {
		p.transcript.Append("error: " + schema.ErrAssistant.Error() + ": not configured")
		return
	}
	p.busy = true
	p.gen++
	gen := p.gen
	contextText := ""
	if p.contextText != nil {
		contextText = p.contextText()
	}
	p.disp.Go(func() {
		ctx, cancel := context.WithTimeout(p.ctx, assistantTimeout)
		answer, err := p.assistant.Ask(ctx, question, contextText)
		cancel()
		if err != nil && !errors.Is(err, schema.ErrAssistant) {
			err = fmt.Errorf("%w: %w", schema.ErrAssistant, err)
		}
		p.disp.Post(func() { p.answered(gen, answer, err) })
	})
}

func (p *assistantPanel) answered(gen uint64, answer schema.AssistantAnswer, err error) {
	if gen != p.gen {
		return
	}
	p.busy = false
	if err != nil {
		p.log.Warn("assistant request failed", "err", err)
		p.transcript.Append("error: " + err.Error())
		p.changed()
		return
	}
	p.transcript.AppendText(answer.Text)
	p.commands = answer.Commands
	for i, cmd := range p.commands {
		if i >= 9 {
			break
		}
		p.transcript.Append(fmt.Sprintf("[alt+%d] %s", i+1, strings.ReplaceAll(cmd, "\n", " && ")))
	}
	p.changed()
}

// cancel drops any in-flight answer.
func (p *assistantPanel) cancel() {
	p.gen++
	p.busy = false
}
