package bots

import (
	"context"
	"io"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/zapzap/internal/core"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/randutil"
)

// Config tunes the orchestrator's timing.
type Config struct {
	// TickInterval is how often playing parties are scanned for bot turns.
	TickInterval time.Duration

	// ActionDelay is slept before committing so bot turns read at a human
	// pace. Zero commits immediately.
	ActionDelay time.Duration

	// DecideTimeout bounds a single strategy call. On expiry the seat
	// forfeits with a deck draw.
	DecideTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.DecideTimeout <= 0 {
		c.DecideTimeout = 5 * time.Second
	}
}

// Orchestrator drives bot seats through the Core's action API. One control
// goroutine ticks; each due bot turn runs in its own goroutine, with at most
// one in flight per party.
type Orchestrator struct {
	core   *core.Core
	logger *log.Logger
	clock  quartz.Clock
	cfg    Config

	rngMu sync.Mutex
	seeds *rand.Rand

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger.WithPrefix("bots") }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(clock quartz.Clock) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithSeed makes strategy RNGs deterministic.
func WithSeed(seed int64) OrchestratorOption {
	return func(o *Orchestrator) { o.seeds = randutil.New(seed) }
}

// NewOrchestrator builds an orchestrator over the given core.
func NewOrchestrator(c *core.Core, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		core:     c,
		logger:   log.New(io.Discard),
		clock:    quartz.NewReal(),
		cfg:      cfg,
		seeds:    randutil.New(randutil.Seed()),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ticks until ctx is cancelled, then drains in-flight bot turns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started", "tick", o.cfg.TickInterval)
	ticker := o.clock.NewTicker(o.cfg.TickInterval, "orchestrator", "tick")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			o.logger.Info("orchestrator stopped")
			return ctx.Err()
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick scans playing parties and spawns a turn for each bot whose party has
// no action already in flight.
func (o *Orchestrator) tick(ctx context.Context) {
	partyIDs, err := o.core.PlayingParties(ctx)
	if err != nil {
		o.logger.Error("listing playing parties", "err", err)
		return
	}
	for _, partyID := range partyIDs {
		if !o.acquire(partyID) {
			continue
		}
		o.wg.Add(1)
		go func(partyID string) {
			defer o.wg.Done()
			defer o.release(partyID)
			o.drive(ctx, partyID)
		}(partyID)
	}
}

func (o *Orchestrator) acquire(partyID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[partyID] {
		return false
	}
	o.inflight[partyID] = true
	return true
}

func (o *Orchestrator) release(partyID string) {
	o.mu.Lock()
	delete(o.inflight, partyID)
	o.mu.Unlock()
}

// drive plays at most one bot action for the party. Errors are logged, not
// retried here: the next tick re-reads the authoritative state.
func (o *Orchestrator) drive(ctx context.Context, partyID string) {
	snap, err := o.core.CurrentTurn(ctx, partyID)
	if core.IsKind(err, core.KindWrongState) {
		// Likely a finished round waiting on the next deal.
		if _, err := o.core.AdvanceRound(ctx, partyID); err != nil {
			o.logger.Debug("round not advanced", "party", partyID, "err", err)
		}
		return
	}
	if err != nil {
		o.logger.Error("resolving current turn", "party", partyID, "err", err)
		return
	}
	if !snap.User.IsBot {
		return
	}

	strategy := Resolve(snap.User.BotDifficulty)
	action := o.decide(ctx, strategy, snap.View)

	if o.cfg.ActionDelay > 0 && !o.sleep(ctx, o.cfg.ActionDelay) {
		return
	}

	if err := o.commit(ctx, snap, action); err != nil {
		o.logger.Warn("bot action rejected",
			"party", partyID, "seat", snap.Seat, "strategy", strategy.Name(),
			"action", action.Type, "err", err)
	}
}

// decide runs the strategy under its deadline. A timeout or panic yields the
// forfeit draw so the turn always passes.
func (o *Orchestrator) decide(ctx context.Context, strategy Strategy, view game.View) Action {
	done := make(chan Action, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("strategy panicked", "strategy", strategy.Name(), "panic", r)
				done <- ForfeitAction()
			}
		}()
		done <- strategy.Decide(view, o.strategyRNG())
	}()

	timeout := make(chan struct{})
	timer := o.clock.AfterFunc(o.cfg.DecideTimeout, func() {
		close(timeout)
	})
	defer timer.Stop()

	select {
	case action := <-done:
		return action
	case <-timeout:
		o.logger.Warn("strategy timed out, forfeiting", "strategy", strategy.Name(), "timeout", o.cfg.DecideTimeout)
		return ForfeitAction()
	case <-ctx.Done():
		return ForfeitAction()
	}
}

func (o *Orchestrator) commit(ctx context.Context, snap *core.TurnSnapshot, action Action) error {
	var err error
	switch action.Type {
	case game.ActionPlay:
		_, err = o.core.PlayCards(ctx, snap.User.ID, snap.PartyID, action.Cards)
	case game.ActionDraw:
		_, err = o.core.DrawCard(ctx, snap.User.ID, snap.PartyID, action.Source, action.CardID)
	case game.ActionZapZap:
		_, err = o.core.CallZapZap(ctx, snap.User.ID, snap.PartyID)
	default:
		o.logger.Error("strategy returned unknown action", "type", action.Type)
		_, err = o.core.DrawCard(ctx, snap.User.ID, snap.PartyID, game.SourceDeck, nil)
	}
	return err
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	woke := make(chan struct{})
	timer := o.clock.AfterFunc(d, func() {
		close(woke)
	})
	defer timer.Stop()

	select {
	case <-woke:
		return true
	case <-ctx.Done():
		return false
	}
}

// strategyRNG hands each decision its own generator so concurrent strategies
// never share one.
func (o *Orchestrator) strategyRNG() *rand.Rand {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return randutil.New(o.seeds.Int64())
}
