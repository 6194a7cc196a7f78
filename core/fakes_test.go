package core

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"pkt.systems/ait/internal/eventbus"
	"pkt.systems/ait/schema"
)

type stubTransport struct {
	mu       sync.Mutex
	openID   schema.SessionID
	openErr  error
	opens    int
	creds    []schema.Credential
	writes   bytes.Buffer
	resizes  []schema.Dimensions
	closed   []schema.SessionID
	execs    []string
	execOut  string
	execErr  error
	writeErr error
	openHook func()
}

func (s *stubTransport) Open(_ context.Context, _ schema.Profile, cred schema.Credential, _ schema.Dimensions) (schema.SessionID, error) {
	s.mu.Lock()
	s.opens++
	s.creds = append(s.creds, cred)
	hook := s.openHook
	id, err := s.openID, s.openErr
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return id, err
}

func (s *stubTransport) Write(_ context.Context, _ schema.SessionID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.Write(data)
	return s.writeErr
}

func (s *stubTransport) Resize(_ context.Context, _ schema.SessionID, size schema.Dimensions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, size)
	return nil
}

func (s *stubTransport) Close(_ context.Context, id schema.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
	return nil
}

func (s *stubTransport) Exec(_ context.Context, _ schema.SessionID, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, command)
	return s.execOut, s.execErr
}

func (s *stubTransport) written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes.String()
}

func (s *stubTransport) resetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes.Reset()
}

type stubCredentials struct {
	cred schema.Credential
	err  error
}

func (s stubCredentials) Credential(context.Context, schema.Profile) (schema.Credential, error) {
	return s.cred, s.err
}

type stubSurface struct {
	mu      sync.Mutex
	out     bytes.Buffer
	row     int
	col     int
	view    OverlayView
	renders int
}

func (s *stubSurface) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(data)
}

func (s *stubSurface) Cursor() (int, int) {
	return s.row, s.col
}

func (s *stubSurface) OverlayChanged(view OverlayView) {
	s.view = view
	s.renders++
}

func (s *stubSurface) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

type suggestionCall struct {
	prefix string
	limit  int
}

type stubSource struct {
	mu    sync.Mutex
	sets  map[string][]schema.CommandSuggestion
	calls []suggestionCall
	err   error
	// hook runs while the query is in flight.
	hook func()
}

func (s *stubSource) Suggestions(_ context.Context, _ schema.ProfileID, prefix string, limit int) ([]schema.CommandSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, suggestionCall{prefix: prefix, limit: limit})
	if hook := s.hook; hook != nil {
		s.hook = nil
		s.mu.Unlock()
		hook()
		s.mu.Lock()
	}
	if s.err != nil {
		return nil, s.err
	}
	if set, ok := s.sets[prefix]; ok {
		return set, nil
	}
	var out []schema.CommandSuggestion
	for _, set := range s.sets {
		for _, item := range set {
			if strings.HasPrefix(item.Cmd, prefix) {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubHistory struct {
	mu    sync.Mutex
	saved []string
}

func (s *stubHistory) SaveHistory(_ context.Context, _ schema.ProfileID, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cmd)
	return nil
}

type stubMacros map[string]string

func (s stubMacros) Macros(context.Context, schema.ProfileID) (schema.Macros, error) {
	return schema.Macros(s), nil
}

type stubAssistant struct {
	answer   schema.AssistantAnswer
	err      error
	question string
	context  string
}

func (s *stubAssistant) Ask(_ context.Context, question, sessionContext string) (schema.AssistantAnswer, error) {
	s.question = question
	s.context = sessionContext
	return s.answer, s.err
}

type testEnv struct {
	disp      *manualDispatcher
	transport *stubTransport
	bus       *eventbus.Bus
	source    *stubSource
	history   *stubHistory
	assistant *stubAssistant
	surface   *stubSurface
	deps      SessionDeps
}

func testProfile() schema.Profile {
	return schema.Profile{ID: "p1", Name: "prod", Host: "example.com", Port: 22, User: "root", AuthType: schema.AuthPassword}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := schema.NormalizeEngineConfig(schema.EngineConfig{SuggestCacheTTL: -1})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	env := &testEnv{
		disp:      newManualDispatcher(),
		transport: &stubTransport{openID: "sess-1"},
		bus:       eventbus.New(nil),
		source:    &stubSource{sets: map[string][]schema.CommandSuggestion{}},
		history:   &stubHistory{},
		assistant: &stubAssistant{},
		surface:   &stubSurface{},
	}
	env.deps = SessionDeps{
		Dispatcher:  env.disp,
		Transport:   env.transport,
		Events:      env.bus,
		Credentials: stubCredentials{cred: schema.Credential{Password: "secret"}},
		Suggestions: env.source,
		History:     env.history,
		Macros:      stubMacros{"1": "uptime"},
		Assistant:   env.assistant,
		Config:      cfg,
	}
	return env
}

// connected returns an open controller with writes cleared.
func (env *testEnv) connected(t *testing.T) *Controller {
	t.Helper()
	c := NewController(context.Background(), env.deps, testProfile(), env.surface)
	c.Open()
	env.disp.Flush()
	if c.State() != schema.StateConnected {
		t.Fatalf("expected connected, got %s (%v)", c.State(), c.Err())
	}
	return c
}

func (env *testEnv) typeText(c *Controller, text string) {
	for _, r := range text {
		c.HandleKey(runeKey(r))
	}
	env.disp.Flush()
}
