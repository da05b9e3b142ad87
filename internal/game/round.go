package game

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/randutil"
)

// Sentinel errors surfaced to the action layer, which maps them onto its
// structured error kinds.
var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrWrongPhase    = errors.New("wrong phase for this action")
	ErrRoundFinished = errors.New("round already finished")
	ErrRoundActive   = errors.New("round still active")
	ErrNotInHand     = errors.New("card not in hand")
	ErrNotInDiscard  = errors.New("card not in current discard")
	ErrNotEligible   = errors.New("hand value too high for zapzap")
	ErrDeckExhausted = errors.New("deck and played history exhausted")
	ErrTooFewSeats   = errors.New("not enough active seats")
	ErrDeckTooSmall  = errors.New("deck cannot cover the requested hands")
)

// RuleError is a rejected play carrying the human-readable reason from the
// card analysis.
type RuleError struct {
	Reason string
}

func (e *RuleError) Error() string { return "invalid play: " + e.Reason }

// Deal creates round one's state: every seat gets handSize cards from a
// freshly shuffled 54-card deck, the rest become the draw pile and the
// starting seat opens in the draw phase.
func Deal(roundID, partyID string, seatCount, handSize int, rng *rand.Rand, now time.Time) (*Round, *State, error) {
	if seatCount < 2 {
		return nil, nil, ErrTooFewSeats
	}

	state := &State{
		SeatCount:  seatCount,
		Hands:      make(map[int][]cards.Card, seatCount),
		Scores:     make(map[int]int, seatCount),
		Eliminated: make(map[int]bool),
	}
	for i := 0; i < seatCount; i++ {
		state.Scores[i] = 0
	}

	round := &Round{
		ID:             roundID,
		PartyID:        partyID,
		RoundNumber:    1,
		Status:         RoundActive,
		CurrentAction:  PhaseDraw,
		StartingPlayer: 0,
		CreatedAt:      now,
	}

	if err := dealInto(state, handSize, rng); err != nil {
		return nil, nil, err
	}
	return round, state, nil
}

// NextRound advances a finished round: the starter rotates to the next
// active seat and a fresh deck is dealt. Cumulative scores, eliminations
// and the Golden Score flag carry over.
func NextRound(prev *Round, state *State, roundID string, handSize int, rng *rand.Rand, now time.Time) (*Round, error) {
	if prev.Status != RoundFinished {
		return nil, ErrRoundActive
	}
	if len(state.ActiveSeats()) < 2 {
		return nil, ErrTooFewSeats
	}

	round := &Round{
		ID:             roundID,
		PartyID:        prev.PartyID,
		RoundNumber:    prev.RoundNumber + 1,
		Status:         RoundActive,
		CurrentAction:  PhaseDraw,
		StartingPlayer: state.NextActiveSeat(prev.StartingPlayer),
		CreatedAt:      now,
	}

	state.Deck = nil
	state.DiscardTop = nil
	state.Played = nil
	state.Hands = make(map[int][]cards.Card, len(state.ActiveSeats()))
	state.LastAction = nil
	state.ZapZapCaller = nil

	if err := dealInto(state, handSize, rng); err != nil {
		return nil, err
	}
	return round, nil
}

func dealInto(state *State, handSize int, rng *rand.Rand) error {
	deck := cards.NewDeck()
	randutil.Shuffle(rng, deck)

	seats := state.ActiveSeats()
	// The draw pile must open non-empty.
	if len(seats)*handSize >= len(deck) {
		return ErrDeckTooSmall
	}
	for _, seat := range seats {
		state.Hands[seat] = append([]cards.Card(nil), deck[:handSize]...)
		deck = deck[handSize:]
	}
	state.Deck = deck
	return nil
}

// RoundResult reports what a finishing action did to the party.
type RoundResult struct {
	Score       cards.RoundScore
	ZapCaller   int
	AutoZapZap  bool
	Eliminated  []int // seats eliminated by this round
	GoldenScore bool  // party is in (or just entered) Golden Score
	GameOver    bool
	WinnerSeat  int // valid when GameOver
	FinalScores map[int]int
}

// Play removes a validated combination from the seat's hand and makes it the
// new discard top. A play that empties the hand ends the round at once as an
// automatic ZapZap with a zero-value hand.
func (s *State) Play(r *Round, seat int, play []cards.Card, now time.Time) (*RoundResult, error) {
	if r.Status != RoundActive {
		return nil, ErrRoundFinished
	}
	if s.CurrentSeat(r) != seat {
		return nil, ErrNotYourTurn
	}
	if r.CurrentAction != PhasePlay {
		return nil, ErrWrongPhase
	}

	analysis := cards.AnalyzePlay(play)
	if !analysis.Valid {
		return nil, &RuleError{Reason: analysis.Reason}
	}
	if err := s.removeFromHand(seat, play); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInHand, err)
	}

	// The previous combination is consumed into the played history and is
	// no longer selectable.
	s.Played = append(s.Played, s.DiscardTop...)
	s.DiscardTop = append([]cards.Card(nil), play...)
	s.LastAction = &LastAction{
		Type:        ActionPlay,
		PlayerIndex: seat,
		CardIDs:     append([]cards.Card(nil), play...),
		Timestamp:   now,
	}
	r.CurrentAction = PhaseDraw

	if len(s.Hands[seat]) == 0 {
		result := s.finishRound(r, seat, now)
		result.AutoZapZap = true
		return result, nil
	}
	return nil, nil
}

// Draw gives the current seat a card from the deck or from the current
// discard combination, then passes the turn.
func (s *State) Draw(r *Round, seat int, source DrawSource, pick *cards.Card, rng *rand.Rand, now time.Time) (*LastAction, error) {
	if r.Status != RoundActive {
		return nil, ErrRoundFinished
	}
	if s.CurrentSeat(r) != seat {
		return nil, ErrNotYourTurn
	}
	if r.CurrentAction != PhaseDraw {
		return nil, ErrWrongPhase
	}

	action := &LastAction{
		Type:        ActionDraw,
		PlayerIndex: seat,
		Source:      source,
		Timestamp:   now,
	}

	switch source {
	case SourceDeck:
		if len(s.Deck) == 0 {
			if len(s.Played) == 0 {
				return nil, ErrDeckExhausted
			}
			// Reshuffle the played history back into the draw pile. The
			// current discard top stays where it is.
			s.Deck = s.Played
			s.Played = nil
			randutil.Shuffle(rng, s.Deck)
			action.DeckReshuffled = true
		}
		card := s.Deck[0]
		s.Deck = s.Deck[1:]
		s.Hands[seat] = append(s.Hands[seat], card)

	case SourceDiscard:
		if pick == nil {
			return nil, ErrNotInDiscard
		}
		found := -1
		for i, c := range s.DiscardTop {
			if c == *pick {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, ErrNotInDiscard
		}
		s.DiscardTop = append(s.DiscardTop[:found], s.DiscardTop[found+1:]...)
		s.Hands[seat] = append(s.Hands[seat], *pick)
		action.CardID = pick

	default:
		return nil, fmt.Errorf("unknown draw source %q", source)
	}

	s.LastAction = action
	r.CurrentTurn++
	r.CurrentAction = PhasePlay
	return action, nil
}

// CallZapZap declares the current seat's hand at or under the eligibility
// threshold and resolves the round.
func (s *State) CallZapZap(r *Round, seat int, now time.Time) (*RoundResult, error) {
	if r.Status != RoundActive {
		return nil, ErrRoundFinished
	}
	if s.CurrentSeat(r) != seat {
		return nil, ErrNotYourTurn
	}
	if r.CurrentAction != PhasePlay {
		return nil, ErrWrongPhase
	}
	if !cards.IsZapZapEligible(s.Hands[seat]) {
		return nil, ErrNotEligible
	}

	s.LastAction = &LastAction{
		Type:        ActionZapZap,
		PlayerIndex: seat,
		Timestamp:   now,
	}
	return s.finishRound(r, seat, now), nil
}

// finishRound scores the active hands, applies deltas, eliminates seats past
// the threshold (outside Golden Score) and decides whether the game is over.
func (s *State) finishRound(r *Round, zapCaller int, now time.Time) *RoundResult {
	active := s.ActiveSeats()
	hands := make(map[int][]cards.Card, len(active))
	for _, seat := range active {
		hands[seat] = s.Hands[seat]
	}

	wasGolden := s.GoldenScore
	score := cards.ScoreRound(hands, zapCaller, len(active))
	for seat, delta := range score.PerSeatDelta {
		s.Scores[seat] += delta
	}

	result := &RoundResult{
		Score:       score,
		ZapCaller:   zapCaller,
		FinalScores: make(map[int]int, len(s.Scores)),
	}

	if !wasGolden {
		for _, seat := range active {
			if cards.Eliminated(s.Scores[seat]) {
				s.Eliminated[seat] = true
				result.Eliminated = append(result.Eliminated, seat)
			}
		}
	}

	s.ZapZapCaller = &zapCaller
	r.Status = RoundFinished
	finished := now
	r.FinishedAt = &finished

	remaining := s.ActiveSeats()
	switch {
	case wasGolden:
		// The ceiling is lifted; the strictly lower cumulative wins, a tie
		// forces another golden round.
		if len(remaining) == 1 {
			result.GameOver = true
			result.WinnerSeat = remaining[0]
			break
		}
		a, b := remaining[0], remaining[1]
		if s.Scores[a] != s.Scores[b] {
			result.GameOver = true
			result.WinnerSeat = a
			if s.Scores[b] < s.Scores[a] {
				result.WinnerSeat = b
			}
		}
	case len(remaining) == 1:
		result.GameOver = true
		result.WinnerSeat = remaining[0]
	case len(remaining) == 2:
		s.GoldenScore = true
	}
	result.GoldenScore = s.GoldenScore

	for seat, total := range s.Scores {
		result.FinalScores[seat] = total
	}
	return result
}
