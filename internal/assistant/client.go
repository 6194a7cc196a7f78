// Package assistant asks an Ollama server about the current shell session.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pkt.systems/ait/internal/version"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

// Settings keys that override the configured defaults.
const (
	SettingServerURL = "ai_server_url"
	SettingModel     = "ai_model"
	SettingLanguage  = "ai_language"
)

const systemPrompt = `You are an expert Linux/Unix system administrator and terminal assistant.

Your responsibilities:
- Provide accurate, concise terminal commands for the user's tasks
- Explain commands clearly with key options
- Always wrap commands in ` + "```bash" + ` code blocks
- Prioritize safety: warn about destructive commands (rm -rf, dd, etc.)
- Consider the user's current environment and context

Response format:
1. Brief explanation of the solution
2. Command(s) in ` + "```bash" + ` blocks
3. Important notes or warnings if needed

Keep responses focused and practical.`

// SettingsSource reads stored settings.
type SettingsSource interface {
	Setting(ctx context.Context, key string) (string, bool, error)
}

// Config holds the defaults used when no setting overrides them.
type Config struct {
	ServerURL string
	Model     string
	Timeout   time.Duration
}

// Client talks to the Ollama generate endpoint.
type Client struct {
	cfg      Config
	settings SettingsSource
	http     *http.Client
	log      pslog.Logger
}

// New constructs a Client. settings may be nil.
func New(cfg Config, settings SettingsSource, logger pslog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Client{
		cfg:      cfg,
		settings: settings,
		http:     &http.Client{},
		log:      logger.With("component", "assistant"),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Endpoint is the resolved server and model.
type Endpoint struct {
	ServerURL string
	Model     string
	Language  string
}

// Endpoint resolves the server, model and reply language, preferring
// stored settings over config.
func (c *Client) Endpoint(ctx context.Context) Endpoint {
	ep := Endpoint{ServerURL: c.cfg.ServerURL, Model: c.cfg.Model}
	if c.settings == nil {
		return ep
	}
	lookup := func(key string) string {
		value, ok, err := c.settings.Setting(ctx, key)
		if err != nil {
			c.log.Warn("assistant setting lookup failed", "key", key, "err", err)
			return ""
		}
		if !ok {
			return ""
		}
		return strings.TrimSpace(value)
	}
	if v := lookup(SettingServerURL); v != "" {
		ep.ServerURL = v
	}
	if v := lookup(SettingModel); v != "" {
		ep.Model = v
	}
	ep.Language = lookup(SettingLanguage)
	return ep
}

// Ask sends question with the session context and returns the reply with
// its fenced commands extracted.
func (c *Client) Ask(ctx context.Context, question, sessionContext string) (schema.AssistantAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return schema.AssistantAnswer{}, fmt.Errorf("%w: empty question", schema.ErrAssistant)
	}
	ep := c.Endpoint(ctx)
	if ep.ServerURL == "" || ep.Model == "" {
		return schema.AssistantAnswer{}, fmt.Errorf("%w: server url and model are required", schema.ErrAssistant)
	}
	body, err := json.Marshal(generateRequest{
		Model:  ep.Model,
		Prompt: BuildPrompt(question, RedactContext(sessionContext), ep.Language),
		Stream: false,
	})
	if err != nil {
		return schema.AssistantAnswer{}, fmt.Errorf("%w: marshal request: %w", schema.ErrAssistant, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	url := strings.TrimRight(ep.ServerURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return schema.AssistantAnswer{}, fmt.Errorf("%w: %w", schema.ErrAssistant, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	log := c.log.With("model", ep.Model)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("assistant request failed", "err", err)
		return schema.AssistantAnswer{}, fmt.Errorf("%w: %w", schema.ErrAssistant, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		log.Warn("assistant request rejected", "status", resp.StatusCode)
		return schema.AssistantAnswer{}, fmt.Errorf("%w: Ollama API error: %s", schema.ErrAssistant, resp.Status)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return schema.AssistantAnswer{}, fmt.Errorf("%w: decode response: %w", schema.ErrAssistant, err)
	}
	answer := schema.AssistantAnswer{Text: out.Response, Commands: ExtractCommands(out.Response)}
	log.Info("assistant answered", "duration", time.Since(start), "commands", len(answer.Commands))
	return answer, nil
}

// BuildPrompt assembles the full prompt sent to the model.
func BuildPrompt(question, sessionContext, language string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if language = strings.TrimSpace(language); language != "" {
		b.WriteString("\n\nAlways respond in ")
		b.WriteString(language)
		b.WriteString(". All explanations must be in ")
		b.WriteString(language)
		b.WriteString(".")
	}
	if sessionContext = strings.TrimSpace(sessionContext); sessionContext != "" {
		b.WriteString("\n\n## Current Context\n")
		b.WriteString(sessionContext)
	}
	b.WriteString("\n\n## User Question\n")
	b.WriteString(question)
	return b.String()
}

// ExtractCommands returns the contents of fenced code blocks, one entry per
// block, with blank and comment lines dropped.
func ExtractCommands(text string) []string {
	var commands []string
	var current []string
	inBlock := false
	flush := func() {
		if len(current) > 0 {
			commands = append(commands, strings.TrimSpace(strings.Join(current, "\n")))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				flush()
			}
			inBlock = !inBlock
			continue
		}
		if !inBlock || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		current = append(current, strings.TrimRight(line, "\r"))
	}
	flush()
	return commands
}
