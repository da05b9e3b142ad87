package core

import (
	"context"
	"errors"

	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/store"
)

const inviteAttempts = 5

// CreateParty creates a waiting party owned by ownerID, seats the owner at
// index 0 and pre-reserves a seat per bot user id.
func (c *Core) CreateParty(ctx context.Context, ownerID, name string, visibility party.Visibility, settings party.Settings, botSeatIDs []string) (*party.Party, error) {
	if name == "" {
		return nil, newError(KindInvalidInput, CodeInvalidInput, "party name is required")
	}
	if visibility != party.Public && visibility != party.Private {
		return nil, newError(KindInvalidInput, CodeInvalidInput, "unknown visibility %q", visibility)
	}
	if err := settings.Validate(); err != nil {
		return nil, newError(KindInvalidInput, CodeInvalidInput, "%v", err)
	}
	if 1+len(botSeatIDs) > settings.PlayerCount {
		return nil, newError(KindInvalidInput, CodeInvalidInput,
			"%d bot seats do not fit a party of %d", len(botSeatIDs), settings.PlayerCount)
	}

	if _, err := c.store.UserByID(ctx, ownerID); err != nil {
		return nil, storeError(err, CodeUserNotFound, "user %s not found", ownerID)
	}
	bots := make([]*store.User, 0, len(botSeatIDs))
	for _, id := range botSeatIDs {
		bot, err := c.store.UserByID(ctx, id)
		if err != nil {
			return nil, storeError(err, CodeBotNotFound, "bot user %s not found", id)
		}
		if !bot.IsBot {
			return nil, newError(KindInvalidInput, CodeInvalidInput, "user %s is not a bot", id)
		}
		bots = append(bots, bot)
	}

	if existing, err := c.store.PartyForUser(ctx, ownerID); err == nil {
		return nil, newError(KindConflict, CodeAlreadyInParty, "user %s is already in party %s", ownerID, existing.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internalError(err)
	}

	now := c.clock.Now()
	p := &party.Party{
		ID:         c.newID(),
		Name:       name,
		OwnerID:    ownerID,
		Visibility: visibility,
		Status:     party.Waiting,
		Settings:   settings,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	unlock := c.lock(p.ID)
	defer unlock()

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	if err := c.createWithInvite(ctx, p); err != nil {
		return nil, err
	}

	seats := make([]*party.Seat, 0, 1+len(bots))
	seats = append(seats, &party.Seat{PartyID: p.ID, UserID: ownerID, PlayerIndex: 0, JoinedAt: now})
	for i, bot := range bots {
		seats = append(seats, &party.Seat{PartyID: p.ID, UserID: bot.ID, PlayerIndex: i + 1, JoinedAt: now})
	}
	for _, seat := range seats {
		if err := c.store.AddPlayer(ctx, seat); err != nil {
			// Leave no partial party behind.
			if delErr := c.store.DeleteParty(ctx, p.ID); delErr != nil {
				c.logger.Error("could not undo partial party create", "party", p.ID, "error", delErr)
			}
			return nil, internalError(err)
		}
	}

	c.bus.Publish(events.NewPartyCreatedEvent(*p))
	for _, seat := range seats {
		c.bus.Publish(events.NewPlayerJoinedEvent(p.ID, seat.UserID, seat.PlayerIndex))
	}
	c.bus.Publish(events.NewUserStatusChangedEvent(ownerID, events.StatusParty, p.ID))

	c.logger.Info("party created", "party", p.ID, "owner", ownerID, "bots", len(bots))
	return p, nil
}

// createWithInvite retries on invite-code collisions, which are rare but
// possible with an 8-character code.
func (c *Core) createWithInvite(ctx context.Context, p *party.Party) error {
	c.rngMu.Lock()
	rng := c.seeds
	c.rngMu.Unlock()

	var lastErr error
	for i := 0; i < inviteAttempts; i++ {
		c.rngMu.Lock()
		p.InviteCode = party.NewInviteCode(rng)
		c.rngMu.Unlock()
		if _, err := c.store.PartyByInviteCode(ctx, p.InviteCode); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return internalError(err)
		}
		if lastErr = c.store.CreateParty(ctx, p); lastErr == nil {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("invite code space exhausted")
	}
	return internalError(lastErr)
}

// JoinParty seats the user in a waiting party. Joining a party the user is
// already seated in succeeds and returns the existing seat.
func (c *Core) JoinParty(ctx context.Context, userID, partyID string) (*party.Seat, error) {
	if _, err := c.store.UserByID(ctx, userID); err != nil {
		return nil, storeError(err, CodeUserNotFound, "user %s not found", userID)
	}

	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}

	if seat := seatOf(seats, userID); seat != nil {
		return seat, nil
	}
	if p.Status != party.Waiting {
		return nil, newError(KindWrongState, CodePartyStarted, "party %s already started", partyID)
	}
	if len(seats) >= p.Settings.PlayerCount {
		return nil, newError(KindConflict, CodePartyFull, "party %s is full", partyID)
	}
	if existing, err := c.store.PartyForUser(ctx, userID); err == nil {
		return nil, newError(KindConflict, CodeAlreadyInParty, "user %s is already in party %s", userID, existing.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internalError(err)
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	seat := &party.Seat{
		PartyID:     partyID,
		UserID:      userID,
		PlayerIndex: len(seats),
		JoinedAt:    c.clock.Now(),
	}
	if err := c.store.AddPlayer(ctx, seat); err != nil {
		return nil, internalError(err)
	}

	c.bus.Publish(events.NewPlayerJoinedEvent(partyID, userID, seat.PlayerIndex))
	c.bus.Publish(events.NewUserStatusChangedEvent(userID, events.StatusParty, partyID))
	c.logger.Info("player joined", "party", partyID, "user", userID, "seat", seat.PlayerIndex)
	return seat, nil
}

// JoinByInviteCode resolves the code and joins the party it names.
func (c *Core) JoinByInviteCode(ctx context.Context, userID, code string) (*party.Seat, error) {
	p, err := c.store.PartyByInviteCode(ctx, code)
	if err != nil {
		return nil, storeError(err, CodePartyNotFound, "no party with that invite code")
	}
	return c.JoinParty(ctx, userID, p.ID)
}

// LeaveParty removes the caller. During waiting the seat is vacated and the
// remaining indices compacted; the owner leaving dissolves the party. During
// play the caller is eliminated immediately and their hand discarded.
func (c *Core) LeaveParty(ctx context.Context, userID, partyID string) error {
	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	seat := seatOf(seats, userID)
	if seat == nil {
		return newError(KindConflict, CodeNotInParty, "user %s is not in party %s", userID, partyID)
	}
	if p.Status == party.Finished {
		return newError(KindWrongState, CodePartyFinished, "party %s is finished", partyID)
	}
	if err := checkDeadline(ctx); err != nil {
		return err
	}

	if p.Status == party.Waiting {
		return c.leaveWaiting(ctx, p, seats, seat)
	}
	return c.leavePlaying(ctx, p, seats, seat)
}

func (c *Core) leaveWaiting(ctx context.Context, p *party.Party, seats []*party.Seat, seat *party.Seat) error {
	// The owner leaving dissolves the party; everyone returns to the lobby.
	if seat.UserID == p.OwnerID {
		if err := c.store.DeleteParty(ctx, p.ID); err != nil {
			return internalError(err)
		}
		for _, s := range seats {
			c.bus.Publish(events.NewPlayerLeftEvent(p.ID, s.UserID, s.PlayerIndex))
			c.bus.Publish(events.NewUserStatusChangedEvent(s.UserID, events.StatusLobby, ""))
		}
		c.bus.Publish(events.NewPartyDeletedEvent(*p))
		c.forget(p.ID)
		c.logger.Info("party dissolved", "party", p.ID, "owner", seat.UserID)
		return nil
	}

	if err := c.store.RemovePlayer(ctx, p.ID, seat.UserID); err != nil {
		return internalError(err)
	}
	remaining := make([]*party.Seat, 0, len(seats)-1)
	for _, s := range seats {
		if s.UserID != seat.UserID {
			remaining = append(remaining, s)
		}
	}
	party.Compact(remaining)
	if err := c.store.UpdateSeats(ctx, p.ID, remaining); err != nil {
		return internalError(err)
	}
	p.UpdatedAt = c.clock.Now()
	if err := c.store.UpdateParty(ctx, p); err != nil {
		return internalError(err)
	}

	c.bus.Publish(events.NewPlayerLeftEvent(p.ID, seat.UserID, seat.PlayerIndex))
	c.bus.Publish(events.NewUserStatusChangedEvent(seat.UserID, events.StatusLobby, ""))
	c.bus.Publish(events.NewPartyUpdatedEvent(*p))
	c.logger.Info("player left", "party", p.ID, "user", seat.UserID)
	return nil
}

func (c *Core) leavePlaying(ctx context.Context, p *party.Party, seats []*party.Seat, seat *party.Seat) error {
	// The game state outlives individual rounds, so a leave lands even in
	// the window between a round finishing and the next deal.
	state, err := c.store.GameState(ctx, p.ID)
	if err != nil {
		return internalError(err)
	}
	rounds, err := c.store.Rounds(ctx, p.ID)
	if err != nil {
		return internalError(err)
	}
	if len(rounds) == 0 {
		return internalError(errors.New("playing party has no rounds"))
	}
	round := rounds[len(rounds)-1]
	prevState := state.Clone()

	state.Eliminated[seat.PlayerIndex] = true
	state.Played = append(state.Played, state.Hands[seat.PlayerIndex]...)
	state.Hands[seat.PlayerIndex] = nil

	now := c.clock.Now()
	remaining := state.ActiveSeats()
	gameOver := len(remaining) == 1
	var prevRound *game.Round
	if gameOver && round.Status == game.RoundActive {
		prevRound = round.Clone()
		round.Status = game.RoundFinished
		round.FinishedAt = &now
	}
	if !gameOver && len(remaining) == 2 {
		state.GoldenScore = true
	}

	if err := c.store.SaveGameState(ctx, p.ID, state); err != nil {
		return internalError(err)
	}
	if prevRound != nil {
		if err := c.store.SaveRound(ctx, round); err != nil {
			c.restoreGame(ctx, p.ID, nil, prevState)
			return internalError(err)
		}
	}
	if gameOver {
		p.Status = party.Finished
		p.UpdatedAt = now
		if err := c.store.UpdateParty(ctx, p); err != nil {
			c.restoreGame(ctx, p.ID, prevRound, prevState)
			return internalError(err)
		}
	}

	c.bus.Publish(events.NewPlayerLeftEvent(p.ID, seat.UserID, seat.PlayerIndex))
	c.bus.Publish(events.NewUserStatusChangedEvent(seat.UserID, events.StatusLobby, ""))
	c.bus.StateChanged(p.ID, "leave")
	if gameOver {
		winner := remaining[0]
		c.bus.Publish(events.NewGameEndedEvent(p.ID, userAtSeat(seats, winner), copyScores(state.Scores)))
		c.bus.Publish(events.NewPartyUpdatedEvent(*p))
		c.dropRNG(p.ID)
	}
	c.logger.Info("player left mid-game", "party", p.ID, "user", seat.UserID, "gameOver", gameOver)
	return nil
}

// StartParty deals the first round. Only the owner can start, at least three
// seats must be filled and every reserved bot seat must still resolve to a
// bot user.
func (c *Core) StartParty(ctx context.Context, ownerID, partyID string) (*game.Round, error) {
	unlock := c.lock(partyID)
	defer unlock()

	p, seats, err := c.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, newError(KindUnauthorized, CodeNotOwner, "user %s does not own party %s", ownerID, partyID)
	}
	if p.Status != party.Waiting {
		return nil, newError(KindWrongState, CodeWrongState, "party %s is not waiting", partyID)
	}
	if len(seats) < party.MinPlayers {
		return nil, newError(KindWrongState, CodeTooFewPlayers,
			"party %s has %d of %d required players", partyID, len(seats), party.MinPlayers)
	}
	for _, seat := range seats {
		u, err := c.store.UserByID(ctx, seat.UserID)
		if err != nil {
			return nil, storeError(err, CodeBotNotFound, "seat user %s not found", seat.UserID)
		}
		if u.IsBot && u.BotDifficulty == store.BotNone {
			return nil, newError(KindInvalidInput, CodeInvalidInput, "bot %s has no difficulty", u.ID)
		}
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	round, state, err := game.Deal(c.newID(), partyID, len(seats), p.Settings.HandSize, c.partyRNG(partyID), now)
	if err != nil {
		return nil, internalError(err)
	}

	// The state blob is unreachable without an active round, so it needs no
	// undo; a round left behind by a failed status flip is deleted so the
	// party stays cleanly waiting.
	if err := c.store.SaveGameState(ctx, partyID, state); err != nil {
		return nil, internalError(err)
	}
	if err := c.store.SaveRound(ctx, round); err != nil {
		return nil, internalError(err)
	}
	p.Status = party.Playing
	p.UpdatedAt = now
	if err := c.store.UpdateParty(ctx, p); err != nil {
		if rbErr := c.store.DeleteRound(ctx, partyID, round.ID); rbErr != nil {
			c.logger.Error("could not undo round write", "party", partyID, "round", round.ID, "error", rbErr)
		}
		return nil, internalError(err)
	}

	c.bus.Publish(events.NewPartyUpdatedEvent(*p))
	c.bus.Publish(events.NewRoundStartedEvent(partyID, round.RoundNumber))
	for _, seat := range seats {
		c.bus.Publish(events.NewUserStatusChangedEvent(seat.UserID, events.StatusGame, partyID))
	}
	c.bus.StateChanged(partyID, "deal")

	c.logger.Info("party started", "party", partyID, "players", len(seats))
	return round, nil
}

func userAtSeat(seats []*party.Seat, index int) string {
	for _, s := range seats {
		if s.PlayerIndex == index {
			return s.UserID
		}
	}
	return ""
}

func copyScores(scores map[int]int) map[int]int {
	out := make(map[int]int, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}
