package ait

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/ait/core"
	"pkt.systems/ait/internal/assistant"
	"pkt.systems/ait/internal/eventbus"
	"pkt.systems/ait/internal/ptyshell"
	"pkt.systems/ait/internal/sshclient"
	"pkt.systems/ait/internal/termui"
	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

// Client composes the transports, the suggestion cache, the assistant and
// the terminal front end.
type Client interface {
	// Run opens a tab per profile and serves the terminal until the last
	// tab closes or ctx ends.
	Run(ctx context.Context, profiles []schema.Profile, activeIdx int) error
	Stop(ctx context.Context) error
}

// ClientConfig configures the compositor.
type ClientConfig struct {
	Engine    schema.EngineConfig
	SSH       sshclient.Config
	Local     ptyshell.Config
	Assistant assistant.Config
	Terminal  termui.Config
}

// Storage is the persistent side of the engine.
type Storage interface {
	core.SuggestionSource
	core.HistoryRecorder
	core.MacroSource
	assistant.SettingsSource
}

// ClientDeps captures dependencies required to build the client.
type ClientDeps struct {
	Storage     Storage
	Credentials core.CredentialSource
	Logger      pslog.Logger
}

// ClientOption toggles compositor components.
type ClientOption func(*clientOptions)

type clientOptions struct {
	enableSSH   bool
	enableLocal bool
}

// WithSSH enables the SSH transport.
func WithSSH() ClientOption {
	return func(o *clientOptions) { o.enableSSH = true }
}

// WithLocalShell enables the local PTY transport for profiles whose host is
// "local".
func WithLocalShell() ClientOption {
	return func(o *clientOptions) { o.enableLocal = true }
}

// New constructs a composable ait client.
func New(cfg ClientConfig, deps ClientDeps, opts ...ClientOption) (Client, error) {
	options := clientOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableSSH && !options.enableLocal {
		return nil, errors.New("no transports enabled")
	}
	if deps.Storage == nil {
		return nil, errors.New("storage dependency is required")
	}
	engine, err := schema.NormalizeEngineConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	cfg.Engine = engine
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	bus := eventbus.New(logger)
	router := transportRouter{}
	if options.enableSSH {
		router.remote = sshclient.New(cfg.SSH, bus, logger)
	}
	if options.enableLocal {
		router.local = ptyshell.New(cfg.Local, bus, logger)
	}
	return &compositeClient{
		cfg:         cfg,
		options:     options,
		bus:         bus,
		transports:  router,
		cache:       core.NewSuggestionCache(engine.SuggestCacheTTL),
		assistant:   assistant.New(cfg.Assistant, deps.Storage, logger),
		storage:     deps.Storage,
		credentials: deps.Credentials,
	}, nil
}

// routedTransport is the engine transport plus shutdown.
type routedTransport interface {
	core.Transport
	CloseAll(ctx context.Context)
}

type compositeClient struct {
	cfg         ClientConfig
	options     clientOptions
	bus         *eventbus.Bus
	transports  routedTransport
	cache       *core.SuggestionCache
	assistant   *assistant.Client
	storage     Storage
	credentials core.CredentialSource
	logger      pslog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

func (c *compositeClient) sessionDeps() core.SessionDeps {
	return core.SessionDeps{
		Transport:   c.transports,
		Events:      c.bus,
		Credentials: c.credentials,
		Suggestions: c.storage,
		Cache:       c.cache,
		History:     c.storage,
		Macros:      c.storage,
		Assistant:   c.assistant,
		Config:      c.cfg.Engine,
	}
}

func (c *compositeClient) Run(ctx context.Context, profiles []schema.Profile, activeIdx int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		pslog.Ctx(ctx).Warn("client run rejected", "reason", "already started")
		return errors.New("client already started")
	}
	c.started = true
	c.logger = pslog.Ctx(ctx)
	c.mu.Unlock()

	log := c.logger
	log.Info(
		"client start",
		"ssh", c.options.enableSSH,
		"local", c.options.enableLocal,
		"tabs", len(profiles),
		"active", activeIdx,
		"suggest_cache_ttl", c.cfg.Engine.SuggestCacheTTL,
	)
	app := termui.New(c.cfg.Terminal, c.sessionDeps())
	runErr := app.Run(ctx, profiles, activeIdx)
	if runErr != nil {
		log.Error("terminal ui failed", "err", runErr)
	}
	if err := c.Stop(context.Background()); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func (c *compositeClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	log := c.logger
	c.mu.Unlock()
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info("client stop requested")
	c.transports.CloseAll(ctx)
	c.cache.Close()
	if err := ctx.Err(); err != nil {
		log.Warn("client stop timed out", "err", err)
		return err
	}
	log.Info("client stopped")
	return nil
}
