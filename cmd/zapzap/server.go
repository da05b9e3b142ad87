package main

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/lox/zapzap/cmd/zapzap/shared"
	"github.com/lox/zapzap/internal/bots"
	"github.com/lox/zapzap/internal/core"
	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/ids"
	"github.com/lox/zapzap/internal/server"
	"github.com/lox/zapzap/internal/store"
)

// ServeCmd runs the WebSocket server and the bot orchestrator.
type ServeCmd struct {
	Config string `kong:"default='zapzap.hcl',help='Path to the HCL config file'"`
	Addr   string `kong:"help='Override the listen address from the config'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Memory bool   `kong:"help='Use the in-memory store instead of SQLite'"`
	Seed   *int64 `kong:"help='Deterministic RNG seed for deck shuffles (optional)'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger := shared.SetupLogger(level)

	var st store.Store
	if c.Memory {
		logger.Warn("using in-memory store, state will not survive restarts")
		st = store.NewMemory()
	} else {
		st, err = store.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return err
		}
		logger.Info("opened database", "path", cfg.Database.Path)
	}
	defer st.Close()

	ctx := shared.SetupSignalHandler(logger)
	if err := seedBots(ctx, st, cfg.Bots); err != nil {
		return err
	}

	bus := events.NewBus(logger)
	coreOpts := []core.Option{core.WithLogger(logger)}
	if c.Seed != nil {
		logger.Info("using deterministic seed", "seed", *c.Seed)
		coreOpts = append(coreOpts, core.WithSeed(*c.Seed))
	}
	engine := core.New(st, bus, coreOpts...)

	orchestrator := bots.NewOrchestrator(engine, bots.Config{
		TickInterval:  cfg.TickInterval(),
		ActionDelay:   cfg.ActionDelay(),
		DecideTimeout: cfg.DecideTimeout(),
	}, bots.WithLogger(logger))

	addr := cfg.ListenAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	srv := server.NewServer(addr, engine, st, logger)

	logger.Info("starting zapzap server",
		"addr", addr,
		"bots", len(cfg.Bots),
		"tick", cfg.TickInterval(),
		"action_delay", cfg.ActionDelay())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return orchestrator.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// seedBots ensures every configured bot has a user record.
func seedBots(ctx context.Context, st store.Store, configs []server.BotConfig) error {
	for _, bc := range configs {
		_, err := st.UserByUsername(ctx, bc.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		u := &store.User{
			ID:            ids.New(),
			Username:      bc.Name,
			IsBot:         true,
			BotDifficulty: store.BotDifficulty(bc.Difficulty),
		}
		if err := st.CreateUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
