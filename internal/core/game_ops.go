package core

import (
	"context"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
)

// ActionOutcome is what a successful in-game action returns: the round and
// state after the mutation, plus the round result when the action ended the
// round.
type ActionOutcome struct {
	Round  *game.Round
	State  *game.State
	Result *game.RoundResult
}

// PlayCards plays a combination from the caller's hand onto the discard.
func (c *Core) PlayCards(ctx context.Context, userID, partyID string, cardIDs []cards.Card) (*ActionOutcome, error) {
	return c.gameAction(ctx, userID, partyID, "play",
		func(round *game.Round, state *game.State, seat int) (*game.RoundResult, error) {
			return state.Play(round, seat, cardIDs, c.clock.Now())
		})
}

// DrawCard draws from the deck or takes a named card from the discard and
// passes the turn.
func (c *Core) DrawCard(ctx context.Context, userID, partyID string, source game.DrawSource, cardID *cards.Card) (*ActionOutcome, error) {
	if source != game.SourceDeck && source != game.SourceDiscard {
		return nil, newError(KindInvalidInput, CodeInvalidSource, "unknown draw source %q", source)
	}
	if source == game.SourceDeck && cardID != nil {
		return nil, newError(KindInvalidInput, CodeInvalidInput, "a deck draw does not name a card")
	}
	return c.gameAction(ctx, userID, partyID, "draw",
		func(round *game.Round, state *game.State, seat int) (*game.RoundResult, error) {
			_, err := state.Draw(round, seat, source, cardID, c.partyRNG(partyID), c.clock.Now())
			return nil, err
		})
}

// CallZapZap declares the caller's hand and resolves the round.
func (c *Core) CallZapZap(ctx context.Context, userID, partyID string) (*ActionOutcome, error) {
	return c.gameAction(ctx, userID, partyID, "zapzap",
		func(round *game.Round, state *game.State, seat int) (*game.RoundResult, error) {
			return state.CallZapZap(round, seat, c.clock.Now())
		})
}

// gameAction is the shared lock-load-mutate-persist-publish path of the
// three in-game operations.
func (c *Core) gameAction(ctx context.Context, userID, partyID, cause string,
	mutate func(*game.Round, *game.State, int) (*game.RoundResult, error)) (*ActionOutcome, error) {

	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.Status != party.Playing {
		return nil, newError(KindWrongState, CodeWrongState, "party %s is not playing", partyID)
	}
	seat := seatOf(seats, userID)
	if seat == nil {
		return nil, newError(KindConflict, CodeNotInParty, "user %s is not in party %s", userID, partyID)
	}
	round, state, err := c.loadGame(ctx, partyID)
	if err != nil {
		return nil, err
	}
	prevRound, prevState := round.Clone(), state.Clone()

	result, err := mutate(round, state, seat.PlayerIndex)
	if err != nil {
		return nil, gameError(err)
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	if err := c.store.SaveGameState(ctx, partyID, state); err != nil {
		return nil, internalError(err)
	}
	if err := c.store.SaveRound(ctx, round); err != nil {
		c.restoreGame(ctx, partyID, nil, prevState)
		return nil, internalError(err)
	}

	outcome := &ActionOutcome{Round: round, State: state, Result: result}
	if result == nil {
		c.bus.StateChanged(partyID, cause)
		return outcome, nil
	}

	// The action ended the round: score deltas are already applied.
	if result.GameOver {
		p.Status = party.Finished
		p.UpdatedAt = c.clock.Now()
		if err := c.store.UpdateParty(ctx, p); err != nil {
			c.restoreGame(ctx, partyID, prevRound, prevState)
			return nil, internalError(err)
		}
	}

	c.bus.StateChanged(partyID, cause)
	c.bus.Publish(events.NewRoundEndedEvent(partyID, round.RoundNumber,
		copyScores(result.Score.PerSeatDelta), result.Score.Counteracted, result.Eliminated))
	if result.GameOver {
		c.bus.Publish(events.NewGameEndedEvent(partyID, userAtSeat(seats, result.WinnerSeat), copyScores(result.FinalScores)))
		c.bus.Publish(events.NewPartyUpdatedEvent(*p))
		c.dropRNG(partyID)
		c.logger.Info("game over", "party", partyID, "winnerSeat", result.WinnerSeat)
	}
	return outcome, nil
}

// AdvanceRound deals the next round once the previous one has finished.
func (c *Core) AdvanceRound(ctx context.Context, partyID string) (*game.Round, error) {
	unlock := c.lock(partyID)
	defer unlock()

	p, _, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.Status == party.Finished {
		return nil, newError(KindWrongState, CodeGameOver, "party %s has finished", partyID)
	}
	if p.Status != party.Playing {
		return nil, newError(KindWrongState, CodeWrongState, "party %s is not playing", partyID)
	}

	rounds, err := c.store.Rounds(ctx, partyID)
	if err != nil {
		return nil, internalError(err)
	}
	if len(rounds) == 0 {
		return nil, newError(KindWrongState, CodeWrongState, "party %s has no rounds", partyID)
	}
	prev := rounds[len(rounds)-1]
	if prev.Status != game.RoundFinished {
		return nil, newError(KindWrongState, CodeRoundNotFinished, "round %d is still active", prev.RoundNumber)
	}

	state, err := c.store.GameState(ctx, partyID)
	if err != nil {
		return nil, internalError(err)
	}

	prevState := state.Clone()
	next, err := game.NextRound(prev, state, c.newID(), p.Settings.HandSize, c.partyRNG(partyID), c.clock.Now())
	if err != nil {
		return nil, gameError(err)
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	if err := c.store.SaveGameState(ctx, partyID, state); err != nil {
		return nil, internalError(err)
	}
	if err := c.store.SaveRound(ctx, next); err != nil {
		c.restoreGame(ctx, partyID, nil, prevState)
		return nil, internalError(err)
	}

	c.bus.Publish(events.NewRoundStartedEvent(partyID, next.RoundNumber))
	c.bus.StateChanged(partyID, "advance")
	c.logger.Info("round advanced", "party", partyID, "round", next.RoundNumber)
	return next, nil
}

// restoreGame re-saves pre-action snapshots after a partial commit failed.
// Runs under the party lock; nil snapshots are skipped.
func (c *Core) restoreGame(ctx context.Context, partyID string, round *game.Round, state *game.State) {
	if state != nil {
		if err := c.store.SaveGameState(ctx, partyID, state); err != nil {
			c.logger.Error("could not undo game-state write", "party", partyID, "error", err)
		}
	}
	if round != nil {
		if err := c.store.SaveRound(ctx, round); err != nil {
			c.logger.Error("could not undo round write", "party", partyID, "round", round.ID, "error", err)
		}
	}
}
