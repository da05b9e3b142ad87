package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/store"
)

type testCore struct {
	*Core
	store *store.Memory
	bus   *events.Bus
}

// faultStore wraps the memory store and fails selected writes on demand.
type faultStore struct {
	store.Store
	mu             sync.Mutex
	saveRoundErr   error
	updatePartyErr error
}

func (f *faultStore) fail(saveRound, updateParty error) {
	f.mu.Lock()
	f.saveRoundErr = saveRound
	f.updatePartyErr = updateParty
	f.mu.Unlock()
}

func (f *faultStore) SaveRound(ctx context.Context, r *game.Round) error {
	f.mu.Lock()
	err := f.saveRoundErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.SaveRound(ctx, r)
}

func (f *faultStore) UpdateParty(ctx context.Context, p *party.Party) error {
	f.mu.Lock()
	err := f.updatePartyErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpdateParty(ctx, p)
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()
	tc, _ := newFaultTestCore(t)
	return tc
}

func newFaultTestCore(t *testing.T) (*testCore, *faultStore) {
	t.Helper()
	mem := store.NewMemory()
	faults := &faultStore{Store: mem}
	bus := events.NewBus(nil)
	seq := 0
	var mu sync.Mutex
	c := New(faults, bus,
		WithSeed(1),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)

	ctx := context.Background()
	for _, u := range []*store.User{
		{ID: "owner", Username: "owner"},
		{ID: "h1", Username: "human-one"},
		{ID: "h2", Username: "human-two"},
		{ID: "h3", Username: "human-three"},
		{ID: "b1", Username: "bot-one", IsBot: true, BotDifficulty: store.BotEasy},
		{ID: "b2", Username: "bot-two", IsBot: true, BotDifficulty: store.BotHard},
	} {
		require.NoError(t, mem.CreateUser(ctx, u))
	}
	return &testCore{Core: c, store: mem, bus: bus}, faults
}

func (tc *testCore) createParty(t *testing.T, botIDs ...string) *party.Party {
	t.Helper()
	p, err := tc.CreateParty(context.Background(), "owner", "test party", party.Public, party.DefaultSettings(), botIDs)
	require.NoError(t, err)
	return p
}

// startedParty returns a playing 3-seat party: owner + h1 + h2.
func (tc *testCore) startedParty(t *testing.T) *party.Party {
	t.Helper()
	ctx := context.Background()
	p := tc.createParty(t)
	_, err := tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "h2", p.ID)
	require.NoError(t, err)
	_, err = tc.StartParty(ctx, "owner", p.ID)
	require.NoError(t, err)
	return p
}

// forceHands rewrites the persisted hands so tests can script endgames.
func (tc *testCore) forceHands(t *testing.T, partyID string, hands map[int][]cards.Card) {
	t.Helper()
	ctx := context.Background()
	state, err := tc.store.GameState(ctx, partyID)
	require.NoError(t, err)

	pool := append([]cards.Card(nil), state.Deck...)
	pool = append(pool, state.Played...)
	for seat, hand := range state.Hands {
		pool = append(pool, hand...)
		state.Hands[seat] = nil
	}
	for seat, want := range hands {
		for _, c := range want {
			for i, p := range pool {
				if p == c {
					pool = append(pool[:i], pool[i+1:]...)
					break
				}
			}
		}
		state.Hands[seat] = append([]cards.Card(nil), want...)
	}
	state.Played = nil
	state.Deck = pool
	require.NoError(t, tc.store.SaveGameState(ctx, partyID, state))
}

func TestCreateParty(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	sub := tc.bus.Subscribe(events.Filter{}, 16)
	defer sub.Close()

	p := tc.createParty(t, "b1", "b2")
	assert.Equal(t, "owner", p.OwnerID)
	assert.Equal(t, party.Waiting, p.Status)
	assert.Len(t, p.InviteCode, 8)

	info, err := tc.Party(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, info.Seats, 3)
	assert.Equal(t, "owner", info.Seats[0].UserID)
	assert.Equal(t, "b1", info.Seats[1].UserID)
	assert.Equal(t, 2, info.Seats[2].PlayerIndex)

	var types []events.Type
	for {
		select {
		case ev := <-sub.C:
			types = append(types, ev.EventType())
			continue
		default:
		}
		break
	}
	assert.Contains(t, types, events.TypePartyCreated)
	assert.Contains(t, types, events.TypePlayerJoined)
}

func TestCreatePartyValidation(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	_, err := tc.CreateParty(ctx, "owner", "", party.Public, party.DefaultSettings(), nil)
	assert.True(t, IsKind(err, KindInvalidInput))

	_, err = tc.CreateParty(ctx, "owner", "p", party.Public, party.Settings{PlayerCount: 2, HandSize: 5}, nil)
	assert.True(t, IsKind(err, KindInvalidInput))

	// 8 hands of 7 cards exceed the deck.
	_, err = tc.CreateParty(ctx, "owner", "p", party.Public, party.Settings{PlayerCount: 8, HandSize: 7}, nil)
	assert.True(t, IsKind(err, KindInvalidInput))

	_, err = tc.CreateParty(ctx, "ghost", "p", party.Public, party.DefaultSettings(), nil)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = tc.CreateParty(ctx, "owner", "p", party.Public, party.DefaultSettings(), []string{"nobody"})
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, CodeBotNotFound, CodeOf(err))

	// A human user cannot fill a bot seat.
	_, err = tc.CreateParty(ctx, "owner", "p", party.Public, party.DefaultSettings(), []string{"h1"})
	assert.True(t, IsKind(err, KindInvalidInput))

	// The owner cannot own two parties at once.
	tc.createParty(t)
	_, err = tc.CreateParty(ctx, "owner", "second", party.Public, party.DefaultSettings(), nil)
	assert.True(t, IsKind(err, KindConflict))
	assert.Equal(t, CodeAlreadyInParty, CodeOf(err))
}

func TestJoinParty(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	p := tc.createParty(t)

	seat, err := tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seat.PlayerIndex)

	// Joining again is idempotent and returns the same seat.
	again, err := tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, seat.PlayerIndex, again.PlayerIndex)

	// A user seated elsewhere cannot join a second party.
	other, err := tc.CreateParty(ctx, "h2", "other", party.Private, party.DefaultSettings(), nil)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "h1", other.ID)
	assert.Equal(t, CodeAlreadyInParty, CodeOf(err))

	// Fill the remaining seats, then overflow.
	_, err = tc.JoinParty(ctx, "h3", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "b1", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "b2", p.ID)
	assert.Equal(t, CodePartyFull, CodeOf(err))

	_, err = tc.JoinParty(ctx, "h1", "missing")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestJoinByInviteCode(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	p := tc.createParty(t)
	seat, err := tc.JoinByInviteCode(ctx, "h1", p.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, p.ID, seat.PartyID)

	_, err = tc.JoinByInviteCode(ctx, "h2", "XXXXXXXX")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestJoinStartedParty(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	p := tc.startedParty(t)

	_, err := tc.JoinParty(context.Background(), "h3", p.ID)
	assert.Equal(t, CodePartyStarted, CodeOf(err))
	assert.True(t, IsKind(err, KindWrongState))
}

func TestLeaveWaiting(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	p := tc.createParty(t)
	_, err := tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "h2", p.ID)
	require.NoError(t, err)

	// A middle seat leaving compacts the indices.
	require.NoError(t, tc.LeaveParty(ctx, "h1", p.ID))
	info, err := tc.Party(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, info.Seats, 2)
	assert.Equal(t, "owner", info.Seats[0].UserID)
	assert.Equal(t, "h2", info.Seats[1].UserID)
	assert.Equal(t, 1, info.Seats[1].PlayerIndex)

	err = tc.LeaveParty(ctx, "h1", p.ID)
	assert.Equal(t, CodeNotInParty, CodeOf(err))

	// The owner leaving dissolves the party.
	sub := tc.bus.Subscribe(events.Filter{PartyID: p.ID}, 16)
	defer sub.Close()
	require.NoError(t, tc.LeaveParty(ctx, "owner", p.ID))
	_, err = tc.Party(ctx, p.ID)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Zero(t, tc.locks.size(), "party lock evicted on dissolve")
}

func TestLeavePlayingEliminates(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	require.NoError(t, tc.LeaveParty(ctx, "h1", p.ID))

	state, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, state.Eliminated[1])
	assert.Empty(t, state.Hands[1])
	assert.True(t, state.GoldenScore, "two seats left enters golden score")

	// The next leave ends the game; the last seat wins.
	require.NoError(t, tc.LeaveParty(ctx, "h2", p.ID))
	info, err := tc.Party(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, party.Finished, info.Party.Status)

	err = tc.LeaveParty(ctx, "owner", p.ID)
	assert.Equal(t, CodePartyFinished, CodeOf(err))
}

func TestLeaveBetweenRounds(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	_, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)
	tc.forceHands(t, p.ID, map[int][]cards.Card{
		0: {12, 25},
		1: {0, 13},
		2: {11, 24},
	})
	_, err = tc.CallZapZap(ctx, "h1", p.ID)
	require.NoError(t, err)

	// The round has finished but not yet advanced; leaving must still land.
	require.NoError(t, tc.LeaveParty(ctx, "h2", p.ID))
	state, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, state.Eliminated[2])
	assert.Empty(t, state.Hands[2])
	assert.True(t, state.GoldenScore, "two seats left enters golden score")

	next, err := tc.AdvanceRound(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.RoundNumber)
	state, err = tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, state.ActiveSeats(), 2)
	assert.Empty(t, state.Hands[2])
}

func TestStartParty(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	p := tc.createParty(t)
	_, err := tc.StartParty(ctx, "owner", p.ID)
	assert.Equal(t, CodeTooFewPlayers, CodeOf(err))

	_, err = tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "h2", p.ID)
	require.NoError(t, err)

	_, err = tc.StartParty(ctx, "h1", p.ID)
	assert.Equal(t, CodeNotOwner, CodeOf(err))
	assert.True(t, IsKind(err, KindUnauthorized))

	round, err := tc.StartParty(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round.RoundNumber)
	assert.Equal(t, game.PhaseDraw, round.CurrentAction)

	info, err := tc.Party(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, party.Playing, info.Party.Status)

	state, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	for seat := 0; seat < 3; seat++ {
		assert.Len(t, state.Hands[seat], p.Settings.HandSize)
	}
	_, ok := state.Conserved()
	assert.True(t, ok)

	// Starting twice is a state error.
	_, err = tc.StartParty(ctx, "owner", p.ID)
	assert.True(t, IsKind(err, KindWrongState))
}

func TestPlayDrawCycle(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	// Seat 0 (owner) opens with a draw.
	turn, err := tc.CurrentTurn(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, turn.Seat)
	assert.Equal(t, "owner", turn.User.ID)

	outcome, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)
	assert.Nil(t, outcome.Result)
	assert.Equal(t, game.PhasePlay, outcome.Round.CurrentAction)

	// Out-of-turn and wrong-phase actions are rejected without mutating.
	_, err = tc.DrawCard(ctx, "h2", p.ID, game.SourceDeck, nil)
	assert.Equal(t, CodeNotYourTurn, CodeOf(err))
	_, err = tc.DrawCard(ctx, "h1", p.ID, game.SourceDeck, nil)
	assert.Equal(t, CodeWrongPhase, CodeOf(err))

	// Seat 1 plays a single then draws; versions advance per action.
	view, err := tc.GameView(ctx, p.ID, "h1")
	require.NoError(t, err)
	require.NotEmpty(t, view.Hand)

	before := tc.bus.Version(p.ID)
	_, err = tc.PlayCards(ctx, "h1", p.ID, []cards.Card{view.Hand[0]})
	require.NoError(t, err)
	_, err = tc.DrawCard(ctx, "h1", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)
	assert.Equal(t, before+2, tc.bus.Version(p.ID))

	turn, err = tc.CurrentTurn(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, turn.Seat)

	// An invalid source is rejected up front, as is a deck draw that names
	// a card.
	_, err = tc.DrawCard(ctx, "h2", p.ID, game.DrawSource("pocket"), nil)
	assert.Equal(t, CodeInvalidSource, CodeOf(err))

	pick := cards.Card(3)
	_, err = tc.DrawCard(ctx, "h2", p.ID, game.SourceDeck, &pick)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestCallZapZapEndsRound(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	sub := tc.bus.Subscribe(events.Filter{PartyID: p.ID}, 32)
	defer sub.Close()

	_, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)

	// Seat 1 gets an eligible hand, the others do not.
	tc.forceHands(t, p.ID, map[int][]cards.Card{
		0: {12, 25}, // 26
		1: {0, 13},  // 2
		2: {11, 24}, // 24
	})

	outcome, err := tc.CallZapZap(ctx, "h1", p.ID)
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.False(t, outcome.Result.Score.Counteracted)
	assert.Equal(t, game.RoundFinished, outcome.Round.Status)
	assert.False(t, outcome.Result.GameOver)

	var sawRoundEnded bool
	for {
		select {
		case ev := <-sub.C:
			if ev.EventType() == events.TypeRoundEnded {
				sawRoundEnded = true
				ended := ev.(events.RoundEndedEvent)
				assert.Equal(t, 0, ended.PerSeatDelta[1])
				assert.Equal(t, 26, ended.PerSeatDelta[0])
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawRoundEnded)

	// The round is over; further actions fail until AdvanceRound.
	_, err = tc.DrawCard(ctx, "h2", p.ID, game.SourceDeck, nil)
	assert.True(t, IsKind(err, KindWrongState))

	next, err := tc.AdvanceRound(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.RoundNumber)
	assert.Equal(t, 1, next.StartingPlayer, "starter rotates")

	// Now advancing again fails: the new round is active.
	_, err = tc.AdvanceRound(ctx, p.ID)
	assert.Equal(t, CodeRoundNotFinished, CodeOf(err))
}

func TestRuleViolationDoesNotMutate(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	_, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)

	tc.forceHands(t, p.ID, map[int][]cards.Card{
		1: {1, 15, 29}, // mixed suits, not a sequence
	})
	stateBefore, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)

	_, err = tc.PlayCards(ctx, "h1", p.ID, []cards.Card{1, 15, 29})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRuleViolation))
	assert.Equal(t, CodeInvalidPlay, CodeOf(err))

	stateAfter, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, stateBefore, stateAfter)
}

func TestFailedPersistRollsBack(t *testing.T) {
	t.Parallel()
	tc, faults := newFaultTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	_, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)

	stateBefore, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	roundBefore, err := tc.store.ActiveRound(ctx, p.ID)
	require.NoError(t, err)
	view, err := tc.GameView(ctx, p.ID, "h1")
	require.NoError(t, err)

	faults.fail(errors.New("disk full"), nil)
	_, err = tc.PlayCards(ctx, "h1", p.ID, []cards.Card{view.Hand[0]})
	assert.True(t, IsKind(err, KindInternal))
	faults.fail(nil, nil)

	stateAfter, err := tc.store.GameState(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, stateBefore, stateAfter, "failed commit leaves no partial change")
	roundAfter, err := tc.store.ActiveRound(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, roundBefore, roundAfter)

	// The same play succeeds once the store recovers.
	_, err = tc.PlayCards(ctx, "h1", p.ID, []cards.Card{view.Hand[0]})
	require.NoError(t, err)
}

func TestFailedStartRollsBack(t *testing.T) {
	t.Parallel()
	tc, faults := newFaultTestCore(t)
	ctx := context.Background()

	p := tc.createParty(t)
	_, err := tc.JoinParty(ctx, "h1", p.ID)
	require.NoError(t, err)
	_, err = tc.JoinParty(ctx, "h2", p.ID)
	require.NoError(t, err)

	faults.fail(nil, errors.New("disk full"))
	_, err = tc.StartParty(ctx, "owner", p.ID)
	assert.True(t, IsKind(err, KindInternal))
	faults.fail(nil, nil)

	info, err := tc.Party(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, party.Waiting, info.Party.Status)
	_, err = tc.store.ActiveRound(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "aborted start leaves no round behind")

	round, err := tc.StartParty(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round.RoundNumber)
}

func TestDeadlineAbortsBeforeCommit(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	p := tc.startedParty(t)

	stateBefore, err := tc.store.GameState(context.Background(), p.ID)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tc.DrawCard(canceled, "owner", p.ID, game.SourceDeck, nil)
	assert.True(t, IsKind(err, KindTimeout))

	stateAfter, err := tc.store.GameState(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, stateBefore, stateAfter, "aborted action leaves no partial change")
}

func TestConcurrentPlaysSerialize(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()
	p := tc.startedParty(t)

	_, err := tc.DrawCard(ctx, "owner", p.ID, game.SourceDeck, nil)
	require.NoError(t, err)

	view, err := tc.GameView(ctx, p.ID, "h1")
	require.NoError(t, err)
	play := []cards.Card{view.Hand[0]}

	// Two racing identical plays: the lock serializes them, the loser sees
	// the phase already advanced.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tc.PlayCards(ctx, "h1", p.ID, play)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, wrongState int
	for err := range errs {
		if err == nil {
			succeeded++
		} else if IsKind(err, KindWrongState) {
			wrongState++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, wrongState)
}

func TestListPublicParties(t *testing.T) {
	t.Parallel()
	tc := newTestCore(t)
	ctx := context.Background()

	tc.createParty(t)
	_, err := tc.CreateParty(ctx, "h1", "hidden", party.Private, party.DefaultSettings(), nil)
	require.NoError(t, err)

	list, err := tc.ListPublicParties(ctx, party.Waiting, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Parties, 1)
	assert.Equal(t, "test party", list.Parties[0].Name)
}
