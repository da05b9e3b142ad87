package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/zapzap/cmd/zapzap/shared"
	"github.com/lox/zapzap/internal/bots"
	"github.com/lox/zapzap/internal/core"
	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/store"
)

// SimulateCmd plays one all-bot party to completion on the in-memory store.
// Useful for exercising the full engine and for reproducing games by seed.
type SimulateCmd struct {
	Players  int           `kong:"default='4',help='Number of bot seats (3-8)'"`
	HandSize int           `kong:"default='5',help='Cards dealt per seat (5-7)'"`
	Seed     int64         `kong:"default='1',help='Deterministic RNG seed'"`
	Timeout  time.Duration `kong:"default='2m',help='Abort if the game has not finished by then'"`
	Debug    bool          `kong:"help='Enable debug logging'"`
}

var difficulties = []store.BotDifficulty{store.BotEasy, store.BotMedium, store.BotHard}

func (c *SimulateCmd) Run() error {
	level := "info"
	if c.Debug {
		level = "debug"
	}
	logger := shared.SetupLogger(level)

	mem := store.NewMemory()
	bus := events.NewBus(logger)
	engine := core.New(mem, bus, core.WithSeed(c.Seed), core.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	seats := make([]string, c.Players)
	for i := range seats {
		u := &store.User{
			ID:            fmt.Sprintf("sim-bot-%d", i+1),
			Username:      fmt.Sprintf("sim-bot-%d", i+1),
			IsBot:         true,
			BotDifficulty: difficulties[i%len(difficulties)],
		}
		if err := mem.CreateUser(ctx, u); err != nil {
			return err
		}
		seats[i] = u.ID
	}

	settings := party.Settings{PlayerCount: c.Players, HandSize: c.HandSize}
	p, err := engine.CreateParty(ctx, seats[0], "simulation", party.Private, settings, seats[1:])
	if err != nil {
		return err
	}

	sub := bus.Subscribe(events.Filter{PartyID: p.ID}, 256)
	defer sub.Close()

	if _, err := engine.StartParty(ctx, seats[0], p.ID); err != nil {
		return err
	}
	logger.Info("simulation started", "party", p.ID, "players", c.Players, "seed", c.Seed)

	orchestrator := bots.NewOrchestrator(engine, bots.Config{
		TickInterval:  time.Millisecond,
		DecideTimeout: time.Second,
	}, bots.WithLogger(logger), bots.WithSeed(c.Seed))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orchestrator.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		return watch(ctx, logger.WithPrefix("sim"), sub)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch narrates the game from the event stream and returns once it ends.
func watch(ctx context.Context, logger *log.Logger, sub *events.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("simulation did not finish: %w", ctx.Err())
		case ev := <-sub.C:
			switch e := ev.(type) {
			case events.RoundStartedEvent:
				logger.Info("round started", "round", e.RoundNumber)
			case events.RoundEndedEvent:
				logger.Info("round ended",
					"round", e.RoundNumber,
					"deltas", e.PerSeatDelta,
					"counteracted", e.Counteracted,
					"eliminated", e.Eliminated)
			case events.GameEndedEvent:
				logger.Info("game over", "winner", e.WinnerUserID, "scores", e.FinalScores)
				return nil
			}
		}
	}
}
