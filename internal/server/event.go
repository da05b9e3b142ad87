package server

import (
	"time"

	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/party"
)

// EventData is the wire form of a bus event. Detail carries the fields
// specific to the event kind.
type EventData struct {
	Event     events.Type `json:"event"`
	PartyID   string      `json:"partyId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Detail    interface{} `json:"detail,omitempty"`
}

type userDetail struct {
	Username string `json:"username"`
}

type statusDetail struct {
	Status events.UserStatus `json:"status"`
}

type partyDetail struct {
	Party party.Party `json:"party"`
}

type seatDetail struct {
	PlayerIndex int `json:"playerIndex"`
}

type roundStartedDetail struct {
	RoundNumber int `json:"roundNumber"`
}

type roundEndedDetail struct {
	RoundNumber  int         `json:"roundNumber"`
	PerSeatDelta map[int]int `json:"perSeatDelta"`
	Counteracted bool        `json:"counteracted"`
	Eliminated   []int       `json:"eliminated,omitempty"`
}

type gameEndedDetail struct {
	WinnerUserID string      `json:"winnerUserId"`
	FinalScores  map[int]int `json:"finalScores"`
}

type stateChangedDetail struct {
	Version uint64 `json:"version"`
	Cause   string `json:"cause"`
}

// eventMessage wraps a bus event in the WebSocket envelope.
func eventMessage(ev events.Event) (*Message, error) {
	data := EventData{
		Event:     ev.EventType(),
		PartyID:   ev.PartyID(),
		UserID:    ev.UserID(),
		Timestamp: ev.Timestamp(),
	}

	switch e := ev.(type) {
	case events.UserConnectedEvent:
		data.Detail = userDetail{Username: e.Username}
	case events.UserDisconnectedEvent:
		data.Detail = userDetail{Username: e.Username}
	case events.UserStatusChangedEvent:
		data.Detail = statusDetail{Status: e.Status}
	case events.PartyCreatedEvent:
		data.Detail = partyDetail{Party: e.Party}
	case events.PartyUpdatedEvent:
		data.Detail = partyDetail{Party: e.Party}
	case events.PartyDeletedEvent:
		data.Detail = partyDetail{Party: e.Party}
	case events.PlayerJoinedEvent:
		data.Detail = seatDetail{PlayerIndex: e.PlayerIndex}
	case events.PlayerLeftEvent:
		data.Detail = seatDetail{PlayerIndex: e.PlayerIndex}
	case events.RoundStartedEvent:
		data.Detail = roundStartedDetail{RoundNumber: e.RoundNumber}
	case events.RoundEndedEvent:
		data.Detail = roundEndedDetail{
			RoundNumber:  e.RoundNumber,
			PerSeatDelta: e.PerSeatDelta,
			Counteracted: e.Counteracted,
			Eliminated:   e.Eliminated,
		}
	case events.GameEndedEvent:
		data.Detail = gameEndedDetail{WinnerUserID: e.WinnerUserID, FinalScores: e.FinalScores}
	case events.StateChangedEvent:
		data.Detail = stateChangedDetail{Version: e.Version, Cause: e.Cause}
	}

	return NewMessage(MessageTypeEvent, data)
}
