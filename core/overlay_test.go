package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/ait/internal/keyinput"
	"pkt.systems/ait/schema"
)

func runeKey(r rune) keyinput.Key {
	return keyinput.Key{Kind: keyinput.KindRune, Rune: r, Raw: []byte(string(r))}
}

func enterKey() keyinput.Key {
	return keyinput.Key{Kind: keyinput.KindEnter, Raw: []byte{'\r'}}
}

func kindKey(kind keyinput.Kind, raw string) keyinput.Key {
	return keyinput.Key{Kind: kind, Raw: []byte(raw)}
}

var (
	rightKey      = kindKey(keyinput.KindRight, "\x1b[C")
	leftKey       = kindKey(keyinput.KindLeft, "\x1b[D")
	upKey         = kindKey(keyinput.KindUp, "\x1b[A")
	downKey       = kindKey(keyinput.KindDown, "\x1b[B")
	escapeKey     = kindKey(keyinput.KindEscape, "\x1b")
	shiftSpaceKey = keyinput.Key{Kind: keyinput.KindRune, Rune: ' ', Mod: keyinput.ModShift, Raw: []byte(" ")}
	ctrlSpaceKey  = keyinput.Key{Kind: keyinput.KindRune, Rune: ' ', Mod: keyinput.ModCtrl, Raw: []byte{0}}
)

func gitSuggestions() map[string][]schema.CommandSuggestion {
	return map[string][]schema.CommandSuggestion{
		"": {
			{Cmd: "git status", Frequency: 9, LastUsed: 100},
			{Cmd: "git log", Frequency: 4, LastUsed: 90},
			{Cmd: "go test ./...", Frequency: 2, LastUsed: 80},
		},
	}
}

func TestInlineSuggestionIsDebounced(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)

	env.typeText(c, "g")
	env.disp.Advance(50 * time.Millisecond)
	env.typeText(c, "i")
	env.disp.Advance(99 * time.Millisecond)
	if env.source.callCount() != 0 {
		t.Fatalf("expected no query before the debounce elapsed, got %d", env.source.callCount())
	}
	env.disp.Advance(time.Millisecond)
	if env.source.callCount() != 1 {
		t.Fatalf("expected one query, got %d", env.source.callCount())
	}
	call := env.source.calls[0]
	if call.prefix != "gi" || call.limit != 1 {
		t.Fatalf("unexpected query %+v", call)
	}
	if got := env.surface.view.InlineRemainder; got != "t status" {
		t.Fatalf("expected ghost text %q, got %q", "t status", got)
	}
}

func TestRightArrowAcceptsInline(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "gi")
	env.disp.Advance(100 * time.Millisecond)

	c.HandleKey(rightKey)
	env.disp.Flush()
	if got := env.transport.written(); got != "git status" {
		t.Fatalf("expected remainder sent, got %q", got)
	}
	if c.Line() != "git status" {
		t.Fatalf("expected mirrored line updated, got %q", c.Line())
	}
	if env.surface.view.InlineRemainder != "" {
		t.Fatalf("expected inline cleared, got %q", env.surface.view.InlineRemainder)
	}
}

func TestRightArrowWithoutInlinePassesThrough(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	env.typeText(c, "ls")
	c.HandleKey(rightKey)
	env.disp.Flush()
	if got := env.transport.written(); got != "ls\x1b[C" {
		t.Fatalf("expected raw right arrow forwarded, got %q", got)
	}
}

func TestInlineIgnoresNonExtendingSuggestion(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = map[string][]schema.CommandSuggestion{"ls": {{Cmd: "ls", Frequency: 3}}}
	c := env.connected(t)
	env.typeText(c, "ls")
	env.disp.Advance(100 * time.Millisecond)
	if env.surface.view.InlineRemainder != "" {
		t.Fatalf("expected no ghost text for an exact match")
	}
	c.HandleKey(rightKey)
	env.disp.Flush()
	if !strings.HasSuffix(env.transport.written(), "\x1b[C") {
		t.Fatalf("expected right arrow forwarded, got %q", env.transport.written())
	}
}

func TestStaleInlineResponseIsDiscarded(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "gi")
	env.source.hook = func() {
		// The user keeps typing while the query is in flight.
		c.HandleKey(runeKey('x'))
	}
	env.disp.Advance(100 * time.Millisecond)
	if env.surface.view.InlineRemainder != "" {
		t.Fatalf("stale answer rendered: %q", env.surface.view.InlineRemainder)
	}
	if c.Line() != "gix" {
		t.Fatalf("unexpected line %q", c.Line())
	}
}

func TestInlineNotScheduledForEmptyLine(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "g")
	c.HandleKey(kindKey(keyinput.KindBackspace, "\x7f"))
	env.disp.Advance(time.Second)
	if env.source.callCount() != 0 {
		t.Fatalf("expected no query for an empty line, got %d", env.source.callCount())
	}
}

func TestSuggestionFetchFailureIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.source.err = errors.New("database is locked")
	c := env.connected(t)
	env.typeText(c, "gi")
	env.disp.Advance(100 * time.Millisecond)
	if env.surface.view.InlineRemainder != "" {
		t.Fatalf("expected no ghost text on failure")
	}
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.surface.view.DropdownOpen {
		t.Fatalf("dropdown must stay closed on failure")
	}
}

func TestShiftSpaceOpensDropdown(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	env.surface.row, env.surface.col = 5, 12
	c := env.connected(t)
	env.typeText(c, "g")

	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	view := env.surface.view
	if !view.DropdownOpen || len(view.Dropdown) != 3 {
		t.Fatalf("expected open dropdown with 3 items, got %+v", view)
	}
	if view.Anchor != (Anchor{Row: 5, Col: 12}) {
		t.Fatalf("unexpected anchor %+v", view.Anchor)
	}
	last := env.source.calls[len(env.source.calls)-1]
	if last.limit != 10 || last.prefix != "g" {
		t.Fatalf("unexpected dropdown query %+v", last)
	}
	if strings.Contains(env.transport.written(), " ") {
		t.Fatalf("shift+space must not reach the shell")
	}
}

func TestDropdownOnEmptyLine(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if !env.surface.view.DropdownOpen {
		t.Fatalf("expected dropdown on an empty line")
	}
}

func TestDropdownStaysClosedWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	c := env.connected(t)
	env.typeText(c, "zzz")
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.surface.view.DropdownOpen || c.Overlay().DropdownOpen() {
		t.Fatalf("expected dropdown closed for an empty set")
	}
}

func TestDropdownClosesWhenRefetchIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "g")
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if !env.surface.view.DropdownOpen {
		t.Fatalf("expected dropdown open")
	}

	env.source.sets = map[string][]schema.CommandSuggestion{}
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.surface.view.DropdownOpen || c.Overlay().DropdownOpen() {
		t.Fatalf("expected dropdown closed after an empty refetch")
	}
	if len(env.surface.view.Dropdown) != 0 {
		t.Fatalf("expected old items cleared, got %+v", env.surface.view.Dropdown)
	}
}

func TestEscapeKeyDoesNotEatNextKey(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	c.HandleKey(escapeKey)
	env.disp.Flush()
	env.typeText(c, "gi")
	env.disp.Advance(100 * time.Millisecond)

	if got := env.transport.written(); got != "\x1bgi" {
		t.Fatalf("expected escape forwarded then gi, got %q", got)
	}
	if c.Line() != "gi" {
		t.Fatalf("expected mirrored line gi, got %q", c.Line())
	}
	if env.source.callCount() != 1 || env.source.calls[0].prefix != "gi" {
		t.Fatalf("expected one inline query for gi, got %+v", env.source.calls)
	}
}

func TestDropdownNavigationClamps(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()

	c.HandleKey(upKey)
	if env.surface.view.Selected != 0 {
		t.Fatalf("expected selection clamped at 0, got %d", env.surface.view.Selected)
	}
	for i := 0; i < 5; i++ {
		c.HandleKey(downKey)
	}
	if env.surface.view.Selected != 2 {
		t.Fatalf("expected selection clamped at 2, got %d", env.surface.view.Selected)
	}
	c.HandleKey(leftKey)
	c.HandleKey(rightKey)
	env.disp.Flush()
	if env.transport.written() != "" {
		t.Fatalf("navigation keys must not reach the shell, got %q", env.transport.written())
	}
}

func TestDropdownCommitErasesThenTypes(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "gi")
	env.transport.resetWrites()

	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	c.HandleKey(downKey)
	c.HandleKey(enterKey())
	env.disp.Flush()
	if got := env.transport.written(); got != "\x7f\x7f" {
		t.Fatalf("expected erase burst first, got %q", got)
	}
	if env.surface.view.DropdownOpen {
		t.Fatalf("expected dropdown closed after commit")
	}
	env.disp.Advance(49 * time.Millisecond)
	if got := env.transport.written(); got != "\x7f\x7f" {
		t.Fatalf("command sent before the commit delay: %q", got)
	}
	env.disp.Advance(time.Millisecond)
	if got := env.transport.written(); got != "\x7f\x7fgit log" {
		t.Fatalf("expected selected command without enter, got %q", got)
	}
	if c.Line() != "git log" {
		t.Fatalf("expected mirrored line %q, got %q", "git log", c.Line())
	}
	if len(env.history.saved) != 0 {
		t.Fatalf("commit must not execute the command")
	}
}

func TestEscapePriority(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)

	c.HandleKey(ctrlSpaceKey)
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if !env.surface.view.DropdownOpen || !env.surface.view.AssistantOpen {
		t.Fatalf("expected dropdown and assistant open, got %+v", env.surface.view)
	}
	c.HandleKey(escapeKey)
	if env.surface.view.DropdownOpen || !env.surface.view.AssistantOpen {
		t.Fatalf("first escape must close only the dropdown")
	}
	c.HandleKey(escapeKey)
	if env.surface.view.AssistantOpen {
		t.Fatalf("second escape must close the assistant")
	}
	c.HandleKey(escapeKey)
	env.disp.Flush()
	if got := env.transport.written(); got != "\x1b" {
		t.Fatalf("third escape must reach the shell, got %q", got)
	}
}

func TestInlineSuppressedWhileDropdownOpen(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	c := env.connected(t)
	env.typeText(c, "gi")
	env.disp.Advance(100 * time.Millisecond)
	if env.surface.view.InlineRemainder == "" {
		t.Fatalf("expected ghost text before opening the dropdown")
	}
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.surface.view.InlineRemainder != "" {
		t.Fatalf("inline must be cleared by the dropdown")
	}
	calls := env.source.callCount()
	env.typeText(c, "t")
	env.disp.Advance(time.Second)
	if env.source.callCount() != calls {
		t.Fatalf("no inline query while the dropdown is open")
	}
}

func TestAssistantPanelCapturesKeysAndInserts(t *testing.T) {
	env := newTestEnv(t)
	env.assistant.answer = schema.AssistantAnswer{
		Text:     "List files with:\n```bash\nls -la /home\n```",
		Commands: []string{"ls -la /home"},
	}
	c := env.connected(t)
	env.typeText(c, "l")
	env.transport.resetWrites()

	c.HandleKey(ctrlSpaceKey)
	env.typeText(c, "list files")
	if env.transport.written() != "" {
		t.Fatalf("panel input leaked to the shell: %q", env.transport.written())
	}
	if env.surface.view.Panel.Question != "list files" {
		t.Fatalf("unexpected question %q", env.surface.view.Panel.Question)
	}
	c.HandleKey(enterKey())
	env.disp.Flush()
	if env.assistant.question != "list files" {
		t.Fatalf("unexpected question sent %q", env.assistant.question)
	}
	if !strings.Contains(env.assistant.context, "Current input: l") {
		t.Fatalf("expected line in assistant context, got %q", env.assistant.context)
	}
	panel := env.surface.view.Panel
	if len(panel.Commands) != 1 || panel.Busy {
		t.Fatalf("expected answered panel, got %+v", panel)
	}
	c.HandleKey(keyinput.Key{Kind: keyinput.KindRune, Rune: '1', Mod: keyinput.ModAlt, Raw: []byte("\x1b1")})
	env.disp.Advance(50 * time.Millisecond)
	if got := env.transport.written(); got != "\x7fls -la /home" {
		t.Fatalf("expected erase then command, got %q", got)
	}
	if env.surface.view.AssistantOpen {
		t.Fatalf("expected panel closed after insert")
	}
}

func TestAssistantErrorShownInPanel(t *testing.T) {
	env := newTestEnv(t)
	env.assistant.err = errors.New("Ollama API error: 500 Internal Server Error")
	c := env.connected(t)
	c.HandleKey(ctrlSpaceKey)
	env.typeText(c, "why")
	c.HandleKey(enterKey())
	env.disp.Flush()
	lines := strings.Join(env.surface.view.Panel.Lines, "\n")
	if !strings.Contains(lines, "Ollama API error: 500") {
		t.Fatalf("expected error in transcript, got %q", lines)
	}
	if env.surface.view.Panel.Busy {
		t.Fatalf("expected panel ready for a retry")
	}
}

func TestSuggestionCacheServesRepeatedQueries(t *testing.T) {
	env := newTestEnv(t)
	env.source.sets = gitSuggestions()
	env.deps.Cache = NewSuggestionCache(time.Minute)
	defer env.deps.Cache.Close()
	c := env.connected(t)

	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	c.HandleKey(escapeKey)
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.source.callCount() != 1 {
		t.Fatalf("expected cached answer, got %d queries", env.source.callCount())
	}
	env.typeText(c, "ls")
	c.HandleKey(escapeKey)
	env.disp.Flush()
	c.HandleKey(enterKey())
	env.disp.Flush()
	c.HandleKey(shiftSpaceKey)
	env.disp.Flush()
	if env.source.callCount() != 2 {
		t.Fatalf("expected cache invalidated after a save, got %d queries", env.source.callCount())
	}
}
