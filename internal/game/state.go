// Package game implements the per-round ZapZap state machine: dealing,
// legal plays, draws from deck or discard, the ZapZap call, scoring,
// elimination and Golden Score. The machine is deterministic given its
// random source; all persistence and locking live above it.
package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/lox/zapzap/internal/cards"
)

// Phase is the action the current seat must take next.
type Phase string

const (
	PhaseDraw Phase = "draw"
	PhasePlay Phase = "play"
)

// RoundStatus is the lifecycle of a single round.
type RoundStatus string

const (
	RoundActive   RoundStatus = "active"
	RoundFinished RoundStatus = "finished"
)

// DrawSource selects where a draw takes its card from.
type DrawSource string

const (
	SourceDeck    DrawSource = "deck"
	SourceDiscard DrawSource = "discard"
)

// ActionType tags the last action recorded on the state.
type ActionType string

const (
	ActionPlay   ActionType = "play"
	ActionDraw   ActionType = "draw"
	ActionZapZap ActionType = "zapzap"
)

// Round is one deal-to-score cycle within a party.
type Round struct {
	ID             string      `json:"id"`
	PartyID        string      `json:"partyId"`
	RoundNumber    int         `json:"roundNumber"`
	Status         RoundStatus `json:"status"`
	CurrentTurn    int         `json:"currentTurn"`
	CurrentAction  Phase       `json:"currentAction"`
	StartingPlayer int         `json:"startingPlayer"`
	CreatedAt      time.Time   `json:"createdAt"`
	FinishedAt     *time.Time  `json:"finishedAt,omitempty"`
}

// Clone returns an independent copy of the round.
func (r *Round) Clone() *Round {
	cp := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// LastAction records the most recent mutation for clients and bots.
type LastAction struct {
	Type           ActionType   `json:"type"`
	PlayerIndex    int          `json:"playerIndex"`
	CardIDs        []cards.Card `json:"cardIds,omitempty"`
	Source         DrawSource   `json:"source,omitempty"`
	CardID         *cards.Card  `json:"cardId,omitempty"`
	DeckReshuffled bool         `json:"deckReshuffled,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// State is the full mutable game state of a party's active round plus the
// cumulative figures that survive across rounds. Card conservation holds at
// all times: Deck, DiscardTop, Played and the hands partition the 54 ids.
type State struct {
	SeatCount int `json:"seatCount"`

	// Deck holds the draw pile, element 0 on top.
	Deck []cards.Card `json:"deck"`

	// DiscardTop is the combination played most recently; each of its cards
	// is individually drawable until the next play supersedes it.
	DiscardTop []cards.Card `json:"discardTop"`

	// Played collects every superseded discard. It is the reshuffle pool.
	Played []cards.Card `json:"played"`

	Hands map[int][]cards.Card `json:"hands"`

	// Scores and Eliminated carry across rounds for the life of the party.
	Scores      map[int]int  `json:"scoresCumulative"`
	Eliminated  map[int]bool `json:"eliminated"`
	GoldenScore bool         `json:"goldenScore"`

	LastAction   *LastAction `json:"lastAction,omitempty"`
	ZapZapCaller *int        `json:"zapZapCaller,omitempty"`
}

// Clone returns a deep copy of the state. The action layer snapshots state
// before mutating so a failed persist can restore the previous value.
func (s *State) Clone() *State {
	cp := *s
	cp.Deck = append([]cards.Card(nil), s.Deck...)
	cp.DiscardTop = append([]cards.Card(nil), s.DiscardTop...)
	cp.Played = append([]cards.Card(nil), s.Played...)
	cp.Hands = make(map[int][]cards.Card, len(s.Hands))
	for seat, hand := range s.Hands {
		cp.Hands[seat] = append([]cards.Card(nil), hand...)
	}
	cp.Scores = make(map[int]int, len(s.Scores))
	for seat, total := range s.Scores {
		cp.Scores[seat] = total
	}
	cp.Eliminated = make(map[int]bool, len(s.Eliminated))
	for seat, out := range s.Eliminated {
		cp.Eliminated[seat] = out
	}
	if s.LastAction != nil {
		la := *s.LastAction
		la.CardIDs = append([]cards.Card(nil), s.LastAction.CardIDs...)
		if s.LastAction.CardID != nil {
			c := *s.LastAction.CardID
			la.CardID = &c
		}
		cp.LastAction = &la
	}
	if s.ZapZapCaller != nil {
		caller := *s.ZapZapCaller
		cp.ZapZapCaller = &caller
	}
	return &cp
}

// ActiveSeats returns the non-eliminated seat indices in order.
func (s *State) ActiveSeats() []int {
	seats := make([]int, 0, s.SeatCount)
	for i := 0; i < s.SeatCount; i++ {
		if !s.Eliminated[i] {
			seats = append(seats, i)
		}
	}
	return seats
}

// CurrentSeat derives the seat whose turn it is: the round's turn counter
// walked over the active seats starting from the starting player.
func (s *State) CurrentSeat(r *Round) int {
	active := s.ActiveSeats()
	if len(active) == 0 {
		return -1
	}
	start := 0
	for i, seat := range active {
		if seat == r.StartingPlayer {
			start = i
			break
		}
		// A mid-game elimination can remove the starter; fall through to
		// the next active seat after it.
		if seat > r.StartingPlayer {
			start = i
			break
		}
	}
	return active[(start+r.CurrentTurn)%len(active)]
}

// NextActiveSeat returns the first non-eliminated seat strictly after the
// given seat, wrapping around.
func (s *State) NextActiveSeat(after int) int {
	for i := 1; i <= s.SeatCount; i++ {
		seat := (after + i) % s.SeatCount
		if !s.Eliminated[seat] {
			return seat
		}
	}
	return -1
}

// Hand returns the named seat's hand.
func (s *State) Hand(seat int) []cards.Card {
	return s.Hands[seat]
}

// removeFromHand removes the play (as a multiset) from the seat's hand.
func (s *State) removeFromHand(seat int, play []cards.Card) error {
	hand := s.Hands[seat]
	remaining := make([]cards.Card, len(hand))
	copy(remaining, hand)

	for _, c := range play {
		found := -1
		for i, h := range remaining {
			if h == c {
				found = i
				break
			}
		}
		if found < 0 {
			return fmt.Errorf("card %v not in hand", c)
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	s.Hands[seat] = remaining
	return nil
}

// Conserved verifies the card conservation invariant, returning the sorted
// multiset of all ids for diagnostics.
func (s *State) Conserved() ([]cards.Card, bool) {
	all := make([]cards.Card, 0, cards.DeckSize)
	all = append(all, s.Deck...)
	all = append(all, s.DiscardTop...)
	all = append(all, s.Played...)
	for _, hand := range s.Hands {
		all = append(all, hand...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	if len(all) != cards.DeckSize {
		return all, false
	}
	for i, c := range all {
		if int(c) != i {
			return all, false
		}
	}
	return all, true
}
