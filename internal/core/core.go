// Package core is the action layer of the server: every mutation of a party
// flows through one of its operations, which acquire the party lock, validate
// against current state, run the pure game rules, persist and publish events.
package core

import (
	"context"
	"errors"
	"io"
	rand "math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/ids"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/randutil"
	"github.com/lox/zapzap/internal/store"
)

// Core holds the repositories, event bus and mutex registry; all action
// functions hang off it.
type Core struct {
	store  store.Store
	bus    *events.Bus
	locks  *lockRegistry
	logger *log.Logger
	clock  quartz.Clock
	newID  func() string

	// Per-party RNGs, seeded at party start. Guarded by rngMu, not the
	// party lock, because eviction can race a start elsewhere.
	rngMu sync.Mutex
	seeds *rand.Rand
	rngs  map[string]*rand.Rand
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Core) { c.logger = logger.WithPrefix("core") }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(clock quartz.Clock) Option {
	return func(c *Core) { c.clock = clock }
}

// WithSeed makes party RNGs deterministic. Useful for simulations and tests.
func WithSeed(seed int64) Option {
	return func(c *Core) { c.seeds = randutil.New(seed) }
}

// WithIDGenerator replaces the id source, for tests that want stable ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Core) { c.newID = newID }
}

// New builds a Core around a store and a bus.
func New(st store.Store, bus *events.Bus, opts ...Option) *Core {
	c := &Core{
		store:  st,
		bus:    bus,
		locks:  newLockRegistry(),
		logger: log.New(io.Discard),
		clock:  quartz.NewReal(),
		newID:  ids.New,
		seeds:  randutil.New(randutil.Seed()),
		rngs:   make(map[string]*rand.Rand),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bus exposes the event bus for subscribers (server connections, bots).
func (c *Core) Bus() *events.Bus { return c.bus }

// partyRNG returns the party's RNG, creating it on first use so deck
// shuffles and reshuffles draw from one sequence.
func (c *Core) partyRNG(partyID string) *rand.Rand {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	rng, ok := c.rngs[partyID]
	if !ok {
		rng = randutil.New(c.seeds.Int64())
		c.rngs[partyID] = rng
	}
	return rng
}

// dropRNG releases the party's RNG once no more rounds will be dealt.
func (c *Core) dropRNG(partyID string) {
	c.rngMu.Lock()
	delete(c.rngs, partyID)
	c.rngMu.Unlock()
}

// forget drops the per-party resources after deletion.
func (c *Core) forget(partyID string) {
	c.dropRNG(partyID)
	c.locks.evict(partyID)
}

// PartyInfo is a read snapshot of a party and its seats.
type PartyInfo struct {
	Party *party.Party
	Seats []*party.Seat
}

// Party returns a snapshot without taking the party lock; readers reconcile
// via stateChanged versions.
func (c *Core) Party(ctx context.Context, partyID string) (*PartyInfo, error) {
	p, err := c.store.PartyByID(ctx, partyID)
	if err != nil {
		return nil, storeError(err, CodePartyNotFound, "party %s not found", partyID)
	}
	seats, err := c.store.Players(ctx, partyID)
	if err != nil {
		return nil, internalError(err)
	}
	return &PartyInfo{Party: p, Seats: seats}, nil
}

// PartyForUser finds the party the user currently occupies a seat in.
func (c *Core) PartyForUser(ctx context.Context, userID string) (*PartyInfo, error) {
	p, err := c.store.PartyForUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, CodeNotInParty, "user %s is not in a party", userID)
	}
	seats, err := c.store.Players(ctx, p.ID)
	if err != nil {
		return nil, internalError(err)
	}
	return &PartyInfo{Party: p, Seats: seats}, nil
}

// PartyList is one page of the public lobby.
type PartyList struct {
	Parties []*party.Party
	Total   int
}

// ListPublicParties pages through the public lobby for the given status.
func (c *Core) ListPublicParties(ctx context.Context, status party.Status, offset, limit int) (*PartyList, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	parties, err := c.store.ListPublic(ctx, status, offset, limit)
	if err != nil {
		return nil, internalError(err)
	}
	total, err := c.store.CountPublic(ctx, status)
	if err != nil {
		return nil, internalError(err)
	}
	return &PartyList{Parties: parties, Total: total}, nil
}

// GameView builds the caller's seat-scoped view of the active round.
func (c *Core) GameView(ctx context.Context, partyID, userID string) (*game.View, error) {
	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	seat := seatOf(seats, userID)
	if seat == nil {
		return nil, newError(KindConflict, CodeNotInParty, "user %s is not in party %s", userID, partyID)
	}
	round, state, err := c.loadGame(ctx, partyID)
	if err != nil {
		return nil, err
	}
	view := game.NewView(round, state, seat.PlayerIndex, seatUsers(seats), p.Settings.HandSize)
	return &view, nil
}

// TurnSnapshot tells the orchestrator whose turn it is and what they see.
type TurnSnapshot struct {
	PartyID string
	Seat    int
	User    *store.User
	View    game.View
}

// CurrentTurn resolves the seat the active round is waiting on. Returns a
// WrongState error if the party is not playing or the round has finished.
func (c *Core) CurrentTurn(ctx context.Context, partyID string) (*TurnSnapshot, error) {
	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.Status != party.Playing {
		return nil, newError(KindWrongState, CodeWrongState, "party %s is not playing", partyID)
	}
	round, state, err := c.loadGame(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if round.Status != game.RoundActive {
		return nil, newError(KindWrongState, CodeWrongState, "round %s is finished", round.ID)
	}

	seat := state.CurrentSeat(round)
	var user *store.User
	for _, s := range seats {
		if s.PlayerIndex == seat {
			user, err = c.store.UserByID(ctx, s.UserID)
			if err != nil {
				return nil, storeError(err, CodeUserNotFound, "user %s not found", s.UserID)
			}
			break
		}
	}
	if user == nil {
		return nil, internalError(errors.New("current seat has no user"))
	}

	return &TurnSnapshot{
		PartyID: partyID,
		Seat:    seat,
		User:    user,
		View:    game.NewView(round, state, seat, seatUsers(seats), p.Settings.HandSize),
	}, nil
}

// PlayingParties lists the ids the orchestrator iterates on each tick.
func (c *Core) PlayingParties(ctx context.Context) ([]string, error) {
	parties, err := c.store.ListByStatus(ctx, party.Playing)
	if err != nil {
		return nil, internalError(err)
	}
	out := make([]string, len(parties))
	for i, p := range parties {
		out[i] = p.ID
	}
	return out, nil
}

// lock serializes the action against every other action on the same party.
func (c *Core) lock(partyID string) func() {
	lock := c.locks.acquire(partyID)
	return lock.Unlock
}

func (c *Core) loadParty(ctx context.Context, partyID string) (*party.Party, []*party.Seat, error) {
	p, err := c.store.PartyByID(ctx, partyID)
	if err != nil {
		return nil, nil, storeError(err, CodePartyNotFound, "party %s not found", partyID)
	}
	seats, err := c.store.Players(ctx, partyID)
	if err != nil {
		return nil, nil, internalError(err)
	}
	return p, seats, nil
}

func (c *Core) loadGame(ctx context.Context, partyID string) (*game.Round, *game.State, error) {
	round, err := c.store.ActiveRound(ctx, partyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, newError(KindWrongState, CodeWrongState, "no active round in party %s", partyID)
	}
	if err != nil {
		return nil, nil, internalError(err)
	}
	state, err := c.store.GameState(ctx, partyID)
	if err != nil {
		return nil, nil, internalError(err)
	}
	return round, state, nil
}

func seatOf(seats []*party.Seat, userID string) *party.Seat {
	for _, s := range seats {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func seatUsers(seats []*party.Seat) map[int]string {
	users := make(map[int]string, len(seats))
	for _, s := range seats {
		users[s.PlayerIndex] = s.UserID
	}
	return users
}
