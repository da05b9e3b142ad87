package server

import (
	"encoding/json"
	"time"

	"github.com/lox/zapzap/internal/cards"
	"github.com/lox/zapzap/internal/game"
	"github.com/lox/zapzap/internal/party"
)

// MessageType represents a WebSocket message type with type safety
type MessageType string

const (
	// Client to server messages
	MessageTypeAuth         MessageType = "auth"
	MessageTypeCreateParty  MessageType = "create_party"
	MessageTypeJoinParty    MessageType = "join_party"
	MessageTypeJoinByCode   MessageType = "join_by_code"
	MessageTypeLeaveParty   MessageType = "leave_party"
	MessageTypeStartParty   MessageType = "start_party"
	MessageTypeListParties  MessageType = "list_parties"
	MessageTypeGetParty     MessageType = "get_party"
	MessageTypeGetView      MessageType = "get_view"
	MessageTypePlayCards    MessageType = "play_cards"
	MessageTypeDrawCard     MessageType = "draw_card"
	MessageTypeCallZapZap   MessageType = "call_zapzap"
	MessageTypeAdvanceRound MessageType = "advance_round"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypePartyInfo    MessageType = "party_info"
	MessageTypePartyList    MessageType = "party_list"
	MessageTypeView         MessageType = "view"
	MessageTypeAck          MessageType = "ack"
	MessageTypeError        MessageType = "error"
	MessageTypeEvent        MessageType = "event"
)

func (mt MessageType) String() string { return string(mt) }

// Message is the WebSocket envelope. RequestID, when set by the client, is
// echoed on the response so callers can correlate.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type AuthData struct {
	Username string `json:"username"`
}

type CreatePartyData struct {
	Name       string          `json:"name"`
	Visibility string          `json:"visibility,omitempty"`
	Settings   *party.Settings `json:"settings,omitempty"`
	BotIDs     []string        `json:"botIds,omitempty"`
}

type JoinPartyData struct {
	PartyID string `json:"partyId"`
}

type JoinByCodeData struct {
	InviteCode string `json:"inviteCode"`
}

type LeavePartyData struct {
	PartyID string `json:"partyId"`
}

type StartPartyData struct {
	PartyID string `json:"partyId"`
}

type ListPartiesData struct {
	Status string `json:"status,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type GetPartyData struct {
	PartyID string `json:"partyId"`
}

type GetViewData struct {
	PartyID string `json:"partyId"`
}

type PlayCardsData struct {
	PartyID string       `json:"partyId"`
	Cards   []cards.Card `json:"cards"`
}

type DrawCardData struct {
	PartyID string          `json:"partyId"`
	Source  game.DrawSource `json:"source"`
	CardID  *cards.Card     `json:"cardId,omitempty"`
}

type CallZapZapData struct {
	PartyID string `json:"partyId"`
}

type AdvanceRoundData struct {
	PartyID string `json:"partyId"`
}

// Server → Client payloads

type AuthResponseData struct {
	Success  bool   `json:"success"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PartyInfoData struct {
	Party party.Party  `json:"party"`
	Seats []party.Seat `json:"seats"`
}

type PartyListData struct {
	Parties []party.Party `json:"parties"`
	Total   int           `json:"total"`
}

type AckData struct {
	PartyID string `json:"partyId,omitempty"`
}
