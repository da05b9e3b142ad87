// Package events is the in-process pub-sub layer between the core and its
// consumers (websocket connections, the bot orchestrator, tests). Publication
// happens inside the party lock, so subscribers observe one party's events in
// the order the actions committed them.
package events

import (
	"time"

	"github.com/lox/zapzap/internal/party"
)

// Type identifies an event kind.
type Type string

const (
	TypeUserConnected     Type = "user_connected"
	TypeUserDisconnected  Type = "user_disconnected"
	TypeUserStatusChanged Type = "user_status_changed"
	TypePartyCreated      Type = "party_created"
	TypePartyUpdated      Type = "party_updated"
	TypePartyDeleted      Type = "party_deleted"
	TypePlayerJoined      Type = "player_joined"
	TypePlayerLeft        Type = "player_left"
	TypeRoundStarted      Type = "round_started"
	TypeRoundEnded        Type = "round_ended"
	TypeGameEnded         Type = "game_ended"
	TypeStateChanged      Type = "state_changed"
)

func (t Type) String() string { return string(t) }

// UserStatus is where a user currently is, from the lobby's point of view.
type UserStatus string

const (
	StatusLobby UserStatus = "lobby"
	StatusParty UserStatus = "party"
	StatusGame  UserStatus = "game"
)

// Event is anything the core publishes. PartyID is empty for global events;
// UserID is empty for events that concern no single user.
type Event interface {
	EventType() Type
	PartyID() string
	UserID() string
	Timestamp() time.Time
}

// meta carries the fields every event shares.
type meta struct {
	partyID   string
	userID    string
	timestamp time.Time
}

func (m meta) PartyID() string      { return m.partyID }
func (m meta) UserID() string       { return m.userID }
func (m meta) Timestamp() time.Time { return m.timestamp }

func newPartyMeta(partyID string) meta {
	return meta{partyID: partyID, timestamp: time.Now()}
}

// UserConnectedEvent is published when a user's connection is established.
type UserConnectedEvent struct {
	meta
	Username string
}

func (UserConnectedEvent) EventType() Type { return TypeUserConnected }

func NewUserConnectedEvent(userID, username string) UserConnectedEvent {
	return UserConnectedEvent{
		meta:     meta{userID: userID, timestamp: time.Now()},
		Username: username,
	}
}

// UserDisconnectedEvent is published when a user's connection closes.
type UserDisconnectedEvent struct {
	meta
	Username string
}

func (UserDisconnectedEvent) EventType() Type { return TypeUserDisconnected }

func NewUserDisconnectedEvent(userID, username string) UserDisconnectedEvent {
	return UserDisconnectedEvent{
		meta:     meta{userID: userID, timestamp: time.Now()},
		Username: username,
	}
}

// UserStatusChangedEvent tracks a user moving between lobby, party and game.
type UserStatusChangedEvent struct {
	meta
	Status UserStatus
}

func (UserStatusChangedEvent) EventType() Type { return TypeUserStatusChanged }

func NewUserStatusChangedEvent(userID string, status UserStatus, partyID string) UserStatusChangedEvent {
	return UserStatusChangedEvent{
		meta:   meta{userID: userID, partyID: partyID, timestamp: time.Now()},
		Status: status,
	}
}

// PartyCreatedEvent carries a snapshot of the new party.
type PartyCreatedEvent struct {
	meta
	Party party.Party
}

func (PartyCreatedEvent) EventType() Type { return TypePartyCreated }

func NewPartyCreatedEvent(p party.Party) PartyCreatedEvent {
	return PartyCreatedEvent{meta: meta{partyID: p.ID, timestamp: time.Now()}, Party: p}
}

// PartyUpdatedEvent carries a snapshot after a settings or status change.
type PartyUpdatedEvent struct {
	meta
	Party party.Party
}

func (PartyUpdatedEvent) EventType() Type { return TypePartyUpdated }

func NewPartyUpdatedEvent(p party.Party) PartyUpdatedEvent {
	return PartyUpdatedEvent{meta: meta{partyID: p.ID, timestamp: time.Now()}, Party: p}
}

// PartyDeletedEvent is the last event a party ever publishes.
type PartyDeletedEvent struct {
	meta
	Party party.Party
}

func (PartyDeletedEvent) EventType() Type { return TypePartyDeleted }

func NewPartyDeletedEvent(p party.Party) PartyDeletedEvent {
	return PartyDeletedEvent{meta: meta{partyID: p.ID, timestamp: time.Now()}, Party: p}
}

// PlayerJoinedEvent is published when a seat is taken.
type PlayerJoinedEvent struct {
	meta
	PlayerIndex int
}

func (PlayerJoinedEvent) EventType() Type { return TypePlayerJoined }

func NewPlayerJoinedEvent(partyID, userID string, playerIndex int) PlayerJoinedEvent {
	return PlayerJoinedEvent{
		meta:        meta{partyID: partyID, userID: userID, timestamp: time.Now()},
		PlayerIndex: playerIndex,
	}
}

// PlayerLeftEvent is published when a seat is vacated.
type PlayerLeftEvent struct {
	meta
	PlayerIndex int
}

func (PlayerLeftEvent) EventType() Type { return TypePlayerLeft }

func NewPlayerLeftEvent(partyID, userID string, playerIndex int) PlayerLeftEvent {
	return PlayerLeftEvent{
		meta:        meta{partyID: partyID, userID: userID, timestamp: time.Now()},
		PlayerIndex: playerIndex,
	}
}

// RoundStartedEvent is published after a deal.
type RoundStartedEvent struct {
	meta
	RoundNumber int
}

func (RoundStartedEvent) EventType() Type { return TypeRoundStarted }

func NewRoundStartedEvent(partyID string, roundNumber int) RoundStartedEvent {
	return RoundStartedEvent{meta: meta{partyID: partyID, timestamp: time.Now()}, RoundNumber: roundNumber}
}

// RoundEndedEvent is published when a round resolves.
type RoundEndedEvent struct {
	meta
	RoundNumber  int
	PerSeatDelta map[int]int
	Counteracted bool
	Eliminated   []int
}

func (RoundEndedEvent) EventType() Type { return TypeRoundEnded }

func NewRoundEndedEvent(partyID string, roundNumber int, perSeatDelta map[int]int, counteracted bool, eliminated []int) RoundEndedEvent {
	return RoundEndedEvent{
		meta:         meta{partyID: partyID, timestamp: time.Now()},
		RoundNumber:  roundNumber,
		PerSeatDelta: perSeatDelta,
		Counteracted: counteracted,
		Eliminated:   eliminated,
	}
}

// GameEndedEvent is published when a single seat remains or a golden round
// produces a winner.
type GameEndedEvent struct {
	meta
	WinnerUserID string
	FinalScores  map[int]int
}

func (GameEndedEvent) EventType() Type { return TypeGameEnded }

func NewGameEndedEvent(partyID, winnerUserID string, finalScores map[int]int) GameEndedEvent {
	return GameEndedEvent{
		meta:         meta{partyID: partyID, timestamp: time.Now()},
		WinnerUserID: winnerUserID,
		FinalScores:  finalScores,
	}
}

// StateChangedEvent is the catch-all signal that a party's game state moved.
// Version increases by one per publication for a given party; clients use it
// to detect gaps after reconnecting.
type StateChangedEvent struct {
	meta
	Version uint64
	Cause   string
}

func (StateChangedEvent) EventType() Type { return TypeStateChanged }
