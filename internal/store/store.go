// Package store defines the repository contracts the core consumes and ships
// two implementations: an in-memory store for tests and simulations, and a
// sqlite store for the server. All calls made from within an action run under
// the party lock, so implementations only need single-call consistency.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// BotDifficulty selects a bot user's strategy.
type BotDifficulty string

const (
	BotNone   BotDifficulty = ""
	BotEasy   BotDifficulty = "easy"
	BotMedium BotDifficulty = "medium"
	BotHard   BotDifficulty = "hard"
)

// User is a registered player, human or bot.
type User struct {
	ID            string
	Username      string
	IsBot         bool
	BotDifficulty BotDifficulty
	CreatedAt     time.Time
}

// UserRepository is the narrow user lookup surface the core needs.
type UserRepository interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserExists(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)
}

// PartyRepository persists parties, their seats, rounds and the game-state
// blob of the active round.
type PartyRepository interface {
	CreateParty(ctx context.Context, p *party.Party) error
	UpdateParty(ctx context.Context, p *party.Party) error
	DeleteParty(ctx context.Context, id string) error
	PartyByID(ctx context.Context, id string) (*party.Party, error)
	PartyByInviteCode(ctx context.Context, code string) (*party.Party, error)
	ListPublic(ctx context.Context, status party.Status, offset, limit int) ([]*party.Party, error)
	CountPublic(ctx context.Context, status party.Status) (int, error)
	ListByStatus(ctx context.Context, status party.Status) ([]*party.Party, error)

	AddPlayer(ctx context.Context, seat *party.Seat) error
	RemovePlayer(ctx context.Context, partyID, userID string) error
	Players(ctx context.Context, partyID string) ([]*party.Seat, error)
	PlayerCount(ctx context.Context, partyID string) (int, error)
	IsUserInParty(ctx context.Context, partyID, userID string) (bool, error)
	UserPlayerIndex(ctx context.Context, partyID, userID string) (int, error)
	UpdateSeats(ctx context.Context, partyID string, seats []*party.Seat) error
	PartyForUser(ctx context.Context, userID string) (*party.Party, error)

	SaveRound(ctx context.Context, r *game.Round) error
	DeleteRound(ctx context.Context, partyID, roundID string) error
	ActiveRound(ctx context.Context, partyID string) (*game.Round, error)
	Rounds(ctx context.Context, partyID string) ([]*game.Round, error)
	SaveGameState(ctx context.Context, partyID string, s *game.State) error
	GameState(ctx context.Context, partyID string) (*game.State, error)
}

// Store bundles the repositories behind one handle.
type Store interface {
	UserRepository
	PartyRepository
	Close() error
}
