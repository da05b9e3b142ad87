package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/zapzap/internal/core"
	"github.com/lox/zapzap/internal/events"
	"github.com/lox/zapzap/internal/ids"
	"github.com/lox/zapzap/internal/party"
	"github.com/lox/zapzap/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one WebSocket client: the read/write pumps, the claimed
// identity and the bus subscriptions that stream events back out.
type Connection struct {
	conn   *websocket.Conn
	core   *core.Core
	users  store.UserRepository
	send   chan *Message
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	userID   string
	username string
	partyID  string

	subMu    sync.Mutex
	userSub  *events.Subscription
	partySub *events.Subscription

	closeOnce sync.Once
}

// NewConnection creates a connection wrapper around an upgraded socket.
func NewConnection(conn *websocket.Conn, c *core.Core, users store.UserRepository, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		core:   c,
		users:  users,
		send:   make(chan *Message, 256),
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.dropSubscriptions()
		close(c.send)
		err = c.conn.Close()

		if userID, username := c.identity(); userID != "" {
			c.core.Bus().Publish(events.NewUserDisconnectedEvent(userID, username))
		}
	})
	return err
}

// SendMessage queues a message for the client. A full buffer closes the
// connection rather than blocking the caller.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Send channel closed during shutdown.
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection", "user", c.UserID())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// UserID returns the authenticated user id, empty before auth.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) identity() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.username
}

func (c *Connection) setIdentity(userID, username string) {
	c.mu.Lock()
	c.userID = userID
	c.username = username
	c.mu.Unlock()
}

func (c *Connection) setParty(partyID string) {
	c.mu.Lock()
	c.partyID = partyID
	c.mu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.partySub != nil {
		c.partySub.Close()
		c.partySub = nil
	}
	if partyID == "" {
		return
	}
	sub := c.core.Bus().Subscribe(events.Filter{PartyID: partyID}, 0)
	c.partySub = sub
	go c.pumpEvents(sub)
}

func (c *Connection) dropSubscriptions() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.userSub != nil {
		c.userSub.Close()
		c.userSub = nil
	}
	if c.partySub != nil {
		c.partySub.Close()
		c.partySub = nil
	}
}

// pumpEvents forwards bus events to the client until the subscription is
// closed (party switch) or the connection dies.
func (c *Connection) pumpEvents(sub *events.Subscription) {
	for {
		select {
		case ev := <-sub.C:
			msg, err := eventMessage(ev)
			if err != nil {
				c.logger.Error("encoding event", "type", ev.EventType(), "err", err)
				continue
			}
			_ = c.SendMessage(msg)
		case <-sub.Done():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages and keepalive pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("writing message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "user", c.UserID())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "failed to parse auth data")
			return
		}
		c.handleAuth(msg.RequestID, data)
		return
	}

	userID := c.UserID()
	if userID == "" {
		c.sendError(msg.RequestID, "not_authenticated", "must authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypeCreateParty:
		handle(c, msg, c.handleCreateParty)
	case MessageTypeJoinParty:
		handle(c, msg, c.handleJoinParty)
	case MessageTypeJoinByCode:
		handle(c, msg, c.handleJoinByCode)
	case MessageTypeLeaveParty:
		handle(c, msg, c.handleLeaveParty)
	case MessageTypeStartParty:
		handle(c, msg, c.handleStartParty)
	case MessageTypeListParties:
		handle(c, msg, c.handleListParties)
	case MessageTypeGetParty:
		handle(c, msg, c.handleGetParty)
	case MessageTypeGetView:
		handle(c, msg, c.handleGetView)
	case MessageTypePlayCards:
		handle(c, msg, c.handlePlayCards)
	case MessageTypeDrawCard:
		handle(c, msg, c.handleDrawCard)
	case MessageTypeCallZapZap:
		handle(c, msg, c.handleCallZapZap)
	case MessageTypeAdvanceRound:
		handle(c, msg, c.handleAdvanceRound)
	default:
		c.sendError(msg.RequestID, "unknown_message_type", "unknown message type: "+msg.Type.String())
	}
}

// handle decodes the payload and routes errors uniformly.
func handle[T any](c *Connection, msg *Message, fn func(requestID string, data T) error) {
	var data T
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "failed to parse "+msg.Type.String()+" data")
			return
		}
	}
	if err := fn(msg.RequestID, data); err != nil {
		c.sendCoreError(msg.RequestID, err)
	}
}

func (c *Connection) handleAuth(requestID string, data AuthData) {
	if data.Username == "" {
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Error: "username required"})
		return
	}

	ctx := c.ctx
	u, err := c.users.UserByUsername(ctx, data.Username)
	if errors.Is(err, store.ErrNotFound) {
		u = &store.User{ID: ids.New(), Username: data.Username}
		err = c.users.CreateUser(ctx, u)
	}
	if err != nil {
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Error: "authentication failed"})
		return
	}
	if u.IsBot {
		c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Error: "username is reserved for a bot"})
		return
	}

	c.setIdentity(u.ID, u.Username)

	c.subMu.Lock()
	if c.userSub == nil {
		sub := c.core.Bus().Subscribe(events.Filter{UserID: u.ID}, 0)
		c.userSub = sub
		go c.pumpEvents(sub)
	}
	c.subMu.Unlock()

	// Re-attach to a party the user is already seated in.
	if info, err := c.core.PartyForUser(ctx, u.ID); err == nil {
		c.setParty(info.Party.ID)
	}

	c.core.Bus().Publish(events.NewUserConnectedEvent(u.ID, u.Username))
	c.logger.Info("authenticated", "user", u.ID, "username", u.Username)
	c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Success: true, UserID: u.ID, Username: u.Username})
}

func (c *Connection) handleCreateParty(requestID string, data CreatePartyData) error {
	visibility := party.Visibility(data.Visibility)
	if data.Visibility == "" {
		visibility = party.Public
	}
	settings := party.DefaultSettings()
	if data.Settings != nil {
		settings = *data.Settings
	}

	p, err := c.core.CreateParty(c.ctx, c.UserID(), data.Name, visibility, settings, data.BotIDs)
	if err != nil {
		return err
	}
	c.setParty(p.ID)
	return c.replyPartyInfo(requestID, p.ID)
}

func (c *Connection) handleJoinParty(requestID string, data JoinPartyData) error {
	seat, err := c.core.JoinParty(c.ctx, c.UserID(), data.PartyID)
	if err != nil {
		return err
	}
	c.setParty(seat.PartyID)
	return c.replyPartyInfo(requestID, seat.PartyID)
}

func (c *Connection) handleJoinByCode(requestID string, data JoinByCodeData) error {
	seat, err := c.core.JoinByInviteCode(c.ctx, c.UserID(), data.InviteCode)
	if err != nil {
		return err
	}
	c.setParty(seat.PartyID)
	return c.replyPartyInfo(requestID, seat.PartyID)
}

func (c *Connection) handleLeaveParty(requestID string, data LeavePartyData) error {
	if err := c.core.LeaveParty(c.ctx, c.UserID(), data.PartyID); err != nil {
		return err
	}
	c.setParty("")
	c.reply(requestID, MessageTypeAck, AckData{PartyID: data.PartyID})
	return nil
}

func (c *Connection) handleStartParty(requestID string, data StartPartyData) error {
	if _, err := c.core.StartParty(c.ctx, c.UserID(), data.PartyID); err != nil {
		return err
	}
	return c.replyPartyInfo(requestID, data.PartyID)
}

func (c *Connection) handleListParties(requestID string, data ListPartiesData) error {
	status := party.Status(data.Status)
	if data.Status == "" {
		status = party.Waiting
	}
	list, err := c.core.ListPublicParties(c.ctx, status, data.Offset, data.Limit)
	if err != nil {
		return err
	}
	parties := make([]party.Party, len(list.Parties))
	for i, p := range list.Parties {
		parties[i] = *p
	}
	c.reply(requestID, MessageTypePartyList, PartyListData{Parties: parties, Total: list.Total})
	return nil
}

func (c *Connection) handleGetParty(requestID string, data GetPartyData) error {
	return c.replyPartyInfo(requestID, data.PartyID)
}

func (c *Connection) handleGetView(requestID string, data GetViewData) error {
	view, err := c.core.GameView(c.ctx, data.PartyID, c.UserID())
	if err != nil {
		return err
	}
	c.reply(requestID, MessageTypeView, view)
	return nil
}

func (c *Connection) handlePlayCards(requestID string, data PlayCardsData) error {
	if _, err := c.core.PlayCards(c.ctx, c.UserID(), data.PartyID, data.Cards); err != nil {
		return err
	}
	c.reply(requestID, MessageTypeAck, AckData{PartyID: data.PartyID})
	return nil
}

func (c *Connection) handleDrawCard(requestID string, data DrawCardData) error {
	if _, err := c.core.DrawCard(c.ctx, c.UserID(), data.PartyID, data.Source, data.CardID); err != nil {
		return err
	}
	c.reply(requestID, MessageTypeAck, AckData{PartyID: data.PartyID})
	return nil
}

func (c *Connection) handleCallZapZap(requestID string, data CallZapZapData) error {
	if _, err := c.core.CallZapZap(c.ctx, c.UserID(), data.PartyID); err != nil {
		return err
	}
	c.reply(requestID, MessageTypeAck, AckData{PartyID: data.PartyID})
	return nil
}

func (c *Connection) handleAdvanceRound(requestID string, data AdvanceRoundData) error {
	if _, err := c.core.AdvanceRound(c.ctx, data.PartyID); err != nil {
		return err
	}
	c.reply(requestID, MessageTypeAck, AckData{PartyID: data.PartyID})
	return nil
}

func (c *Connection) replyPartyInfo(requestID, partyID string) error {
	info, err := c.core.Party(c.ctx, partyID)
	if err != nil {
		return err
	}
	seats := make([]party.Seat, len(info.Seats))
	for i, s := range info.Seats {
		seats[i] = *s
	}
	c.reply(requestID, MessageTypePartyInfo, PartyInfoData{Party: *info.Party, Seats: seats})
	return nil
}

func (c *Connection) reply(requestID string, messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("encoding reply", "type", messageType, "err", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg)
}

// sendCoreError translates a core error into the wire error shape.
func (c *Connection) sendCoreError(requestID string, err error) {
	c.sendError(requestID, core.CodeOf(err), err.Error())
}

func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{Code: code, Message: message})
}
