package chat

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/swiftcab/chat-service/config"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"github.com/swiftcab/chat-service/services"
)

// Close codes sent before any application frame when a connection fails
// authentication or authorization.
const (
	CloseAuthFailure = 4001
	CloseForbidden   = 4003
)

// TokenResolver resolves an opaque access token to a user identity.
type TokenResolver interface {
	ResolveToken(token string) (uuid.UUID, error)
}

// MessageService is the slice of the chat service the gateway drives.
type MessageService interface {
	GetConversation(id uuid.UUID) (*models.Conversation, error)
	CreateMessage(params services.CreateMessageParams) (*models.Message, error)
	MarkDelivered(messageID int64) error
	MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error)
}

// Gateway is the per-connection protocol handler: it authenticates new
// connections, joins them to their room, dispatches inbound frames, and
// owns disconnect cleanup.
type Gateway struct {
	hub         *Hub
	presence    *PresenceTracker
	chatService MessageService
	tokens      TokenResolver
	validate    *validator.Validate

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

func NewGateway(hub *Hub, presence *PresenceTracker, chatService MessageService, tokens TokenResolver, conf *config.Config) *Gateway {
	return &Gateway{
		hub:          hub,
		presence:     presence,
		chatService:  chatService,
		tokens:       tokens,
		validate:     validator.New(),
		pingInterval: conf.PingInterval,
		pongWait:     conf.PongWait(),
		writeWait:    conf.WriteWait,
	}
}

// Hub exposes the room registry so REST mutations (edits, deletes) can
// push their events into the rooms.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Serve runs the connection state machine on an upgraded websocket:
// Connecting -> Authenticated -> Joined -> Closed. Authentication and
// authorization failures close the connection before any frame is sent.
// Serve blocks until the connection is gone.
func (g *Gateway) Serve(conn *websocket.Conn, conversationID uuid.UUID, token string) {
	userID, err := g.tokens.ResolveToken(token)
	if err != nil {
		closeWithCode(conn, CloseAuthFailure, "authentication failed")
		return
	}

	conv, err := g.chatService.GetConversation(conversationID)
	if err != nil {
		closeWithCode(conn, CloseForbidden, "forbidden")
		return
	}
	if !conv.HasParticipant(userID) {
		closeWithCode(conn, CloseForbidden, "forbidden")
		return
	}

	c := newClient(g, conn, conversationID, userID)
	g.hub.Join(conversationID, c)
	go c.writePump()

	c.sendEvent(ConnectionEstablishedEvent())
	c.readPump()
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// handleFrame dispatches one inbound frame. Protocol errors are recoverable:
// the client gets an in-band error frame and the connection stays open.
func (g *Gateway) handleFrame(c *Client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendEvent(ErrorEvent("malformed frame"))
		return
	}
	if err := g.validate.Struct(&f); err != nil {
		c.sendEvent(ErrorEvent("missing frame type"))
		return
	}

	switch f.Type {
	case FrameSendMessage:
		g.handleSendMessage(c, f)
	case FrameTypingStart:
		g.handleTyping(c, true)
	case FrameTypingStop:
		g.handleTyping(c, false)
	case FrameMarkRead:
		g.handleMarkRead(c, f)
	default:
		c.sendEvent(ErrorEvent(fmt.Sprintf("unknown frame type %q", f.Type)))
	}
}

func (g *Gateway) handleSendMessage(c *Client, f Frame) {
	msg, err := g.chatService.CreateMessage(services.CreateMessageParams{
		ConversationID: c.conversationID,
		SenderID:       c.userID,
		Type:           f.MessageType,
		Content:        f.Content,
		Metadata:       f.Metadata,
		ReplyToID:      f.ReplyToID,
	})
	if err != nil {
		c.sendEvent(ErrorEvent(errMessage(err)))
		return
	}

	// Sending is an unambiguous stopped-typing signal; clear the record
	// now instead of letting the TTL sweep get to it.
	if g.presence.IsTyping(c.conversationID, c.userID) {
		g.presence.ClearUser(c.conversationID, c.userID)
		g.hub.Broadcast(c.conversationID, TypingIndicatorEvent(c.userID, false))
	}

	c.sendEvent(MessageSentEvent(msg))
	g.hub.Broadcast(c.conversationID, NewMessageEvent(msg))

	if g.hub.HasOtherMember(c.conversationID, c.userID) {
		if err := g.chatService.MarkDelivered(msg.ID); err != nil {
			log.Printf("mark delivered for message %d: %v", msg.ID, err)
		}
	}
}

func (g *Gateway) handleTyping(c *Client, isTyping bool) {
	g.presence.SetTyping(c.conversationID, c.userID, isTyping)
	g.hub.Broadcast(c.conversationID, TypingIndicatorEvent(c.userID, isTyping))
}

func (g *Gateway) handleMarkRead(c *Client, f Frame) {
	if len(f.MessageIDs) == 0 {
		c.sendEvent(ErrorEvent("mark_read requires message_ids"))
		return
	}

	changed, err := g.chatService.MarkRead(c.conversationID, f.MessageIDs, c.userID)
	if err != nil {
		c.sendEvent(ErrorEvent(errMessage(err)))
		return
	}

	// Read receipts go to the sender of each message only.
	for i := range changed {
		m := &changed[i]
		g.hub.Broadcast(c.conversationID, MessageReadEvent(m.ID, c.userID, m.SenderID))
	}
}

func errMessage(err error) string {
	if apiErr, ok := err.(*apiError.Error); ok {
		return apiErr.Message
	}
	return "internal error"
}
