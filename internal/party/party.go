// Package party holds the party (room) model: settings, visibility, seat
// assignments and lifecycle status. Rule enforcement lives in the core
// package; this package describes the shapes and their local invariants.
package party

import (
	"fmt"
	"time"

	"github.com/lox/zapzap/internal/cards"
)

// Visibility controls whether a party shows up in public listings.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Status is the lifecycle phase of a party.
type Status string

const (
	// Waiting parties accept joins and may be started by their owner.
	Waiting Status = "waiting"
	// Playing parties run rounds until a winner is decided.
	Playing Status = "playing"
	// Finished parties are immutable except for deletion.
	Finished Status = "finished"
)

const (
	MinPlayers  = 3
	MaxPlayers  = 8
	MinHandSize = 5
	MaxHandSize = 7
)

// Settings are the owner-chosen game parameters, fixed at creation.
type Settings struct {
	PlayerCount int `json:"playerCount"`
	HandSize    int `json:"handSize"`
}

// Validate checks the settings ranges.
func (s Settings) Validate() error {
	if s.PlayerCount < MinPlayers || s.PlayerCount > MaxPlayers {
		return fmt.Errorf("player count must be between %d and %d, got %d", MinPlayers, MaxPlayers, s.PlayerCount)
	}
	if s.HandSize < MinHandSize || s.HandSize > MaxHandSize {
		return fmt.Errorf("hand size must be between %d and %d, got %d", MinHandSize, MaxHandSize, s.HandSize)
	}
	// The deal must leave at least one card in the draw pile.
	if s.PlayerCount*s.HandSize >= cards.DeckSize {
		return fmt.Errorf("%d hands of %d cards cannot be dealt from a %d-card deck",
			s.PlayerCount, s.HandSize, cards.DeckSize)
	}
	return nil
}

// DefaultSettings returns the settings used when the caller supplies none.
func DefaultSettings() Settings {
	return Settings{PlayerCount: 4, HandSize: 5}
}

// Party is one room of 3..8 seats playing a single game of ZapZap.
type Party struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	OwnerID    string     `json:"ownerId"`
	InviteCode string     `json:"inviteCode"`
	Visibility Visibility `json:"visibility"`
	Status     Status     `json:"status"`
	Settings   Settings   `json:"settings"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Seat binds a user to a player index inside a party. Indices are contiguous
// 0..n-1 while the party is waiting and are compacted when a seat empties.
type Seat struct {
	PartyID     string    `json:"partyId"`
	UserID      string    `json:"userId"`
	PlayerIndex int       `json:"playerIndex"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Compact reassigns contiguous player indices after a seat was removed,
// preserving the existing order. It returns the seats whose index changed.
func Compact(seats []*Seat) []*Seat {
	var changed []*Seat
	for i, seat := range seats {
		if seat.PlayerIndex != i {
			seat.PlayerIndex = i
			changed = append(changed, seat)
		}
	}
	return changed
}
