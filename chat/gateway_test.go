package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/config"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"github.com/swiftcab/chat-service/services"
)

type fakeMessageService struct {
	conversation *models.Conversation

	createErr     error
	createdParams []services.CreateMessageParams
	nextID        int64

	deliveredIDs []int64

	markReadErr error
	readCalls   [][]int64
	readResult  []models.Message
}

func (f *fakeMessageService) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	if f.conversation == nil || f.conversation.ID != id {
		return nil, apiError.ErrNotFound
	}
	return f.conversation, nil
}

func (f *fakeMessageService) CreateMessage(params services.CreateMessageParams) (*models.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdParams = append(f.createdParams, params)
	f.nextID++
	return &models.Message{
		ID:             f.nextID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Type:           params.Type,
		Content:        params.Content,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (f *fakeMessageService) MarkDelivered(messageID int64) error {
	f.deliveredIDs = append(f.deliveredIDs, messageID)
	return nil
}

func (f *fakeMessageService) MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error) {
	if f.markReadErr != nil {
		return nil, f.markReadErr
	}
	f.readCalls = append(f.readCalls, messageIDs)
	return f.readResult, nil
}

func newFrameTestGateway(svc MessageService) *Gateway {
	conf := &config.Config{
		PingInterval: 30 * time.Second,
		WriteWait:    10 * time.Second,
	}
	return NewGateway(NewHub(), NewPresenceTracker(), svc, nil, conf)
}

func decodeType(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return envelope.Type
}

func TestHandleFrameRejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	gw := newFrameTestGateway(&fakeMessageService{})
	conv := uuid.New()
	c := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, c)

	gw.handleFrame(c, []byte("{not json"))

	frames := drain(c)
	if len(frames) != 1 {
		t.Fatalf("frames: got %d, want 1", len(frames))
	}
	if typ := decodeType(t, frames[0]); typ != EventError {
		t.Errorf("type: got %q, want %q", typ, EventError)
	}
}

func TestHandleFrameRejectsUnknownType(t *testing.T) {
	t.Parallel()
	gw := newFrameTestGateway(&fakeMessageService{})
	conv := uuid.New()
	c := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, c)

	for _, raw := range []string{`{}`, `{"type":"subscribe"}`} {
		gw.handleFrame(c, []byte(raw))
	}

	frames := drain(c)
	if len(frames) != 2 {
		t.Fatalf("frames: got %d, want 2", len(frames))
	}
	for _, fr := range frames {
		if typ := decodeType(t, fr); typ != EventError {
			t.Errorf("type: got %q, want %q", typ, EventError)
		}
	}
}

func TestSendMessageAcksSenderAndFansOut(t *testing.T) {
	t.Parallel()
	svc := &fakeMessageService{}
	gw := newFrameTestGateway(svc)
	conv := uuid.New()
	rider := newClient(gw, nil, conv, uuid.New())
	driver := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, rider)
	gw.hub.Join(conv, driver)

	gw.handleFrame(rider, []byte(`{"type":"send_message","content":"I'm at the pickup point","message_type":"text"}`))

	if len(svc.createdParams) != 1 {
		t.Fatalf("create calls: got %d, want 1", len(svc.createdParams))
	}
	if got := svc.createdParams[0].Content; got != "I'm at the pickup point" {
		t.Errorf("content: got %q", got)
	}

	riderFrames := drain(rider)
	if len(riderFrames) != 1 {
		t.Fatalf("sender frames: got %d, want 1", len(riderFrames))
	}
	if typ := decodeType(t, riderFrames[0]); typ != EventMessageSent {
		t.Errorf("sender frame type: got %q, want %q", typ, EventMessageSent)
	}

	driverFrames := drain(driver)
	if len(driverFrames) != 1 {
		t.Fatalf("driver frames: got %d, want 1", len(driverFrames))
	}
	if typ := decodeType(t, driverFrames[0]); typ != EventNewMessage {
		t.Errorf("driver frame type: got %q, want %q", typ, EventNewMessage)
	}

	// The counterpart was connected, so the message is delivered.
	if len(svc.deliveredIDs) != 1 || svc.deliveredIDs[0] != 1 {
		t.Errorf("delivered IDs: got %v, want [1]", svc.deliveredIDs)
	}
}

func TestSendMessageSkipsDeliveryWhenAlone(t *testing.T) {
	t.Parallel()
	svc := &fakeMessageService{}
	gw := newFrameTestGateway(svc)
	conv := uuid.New()
	rider := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, rider)

	gw.handleFrame(rider, []byte(`{"type":"send_message","content":"anyone there?","message_type":"text"}`))

	if len(svc.deliveredIDs) != 0 {
		t.Errorf("delivered IDs: got %v, want none", svc.deliveredIDs)
	}
}

func TestSendMessageSurfacesServiceError(t *testing.T) {
	t.Parallel()
	svc := &fakeMessageService{createErr: apiError.ErrConversationNotActive}
	gw := newFrameTestGateway(svc)
	conv := uuid.New()
	c := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, c)

	gw.handleFrame(c, []byte(`{"type":"send_message","content":"hi","message_type":"text"}`))

	frames := drain(c)
	if len(frames) != 1 {
		t.Fatalf("frames: got %d, want 1", len(frames))
	}
	var decoded struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != EventError {
		t.Errorf("type: got %q, want %q", decoded.Type, EventError)
	}
	if decoded.Message != apiError.ErrConversationNotActive.Message {
		t.Errorf("message: got %q, want %q", decoded.Message, apiError.ErrConversationNotActive.Message)
	}
}

func TestSendMessageClearsTypingState(t *testing.T) {
	t.Parallel()
	svc := &fakeMessageService{}
	gw := newFrameTestGateway(svc)
	conv := uuid.New()
	riderID := uuid.New()
	rider := newClient(gw, nil, conv, riderID)
	driver := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, rider)
	gw.hub.Join(conv, driver)

	gw.handleFrame(rider, []byte(`{"type":"typing_start"}`))
	gw.handleFrame(rider, []byte(`{"type":"send_message","content":"done typing","message_type":"text"}`))

	if gw.presence.IsTyping(conv, riderID) {
		t.Error("typing state should be cleared by sending")
	}

	// typing true, typing false, then the new message.
	frames := drain(driver)
	if len(frames) != 3 {
		t.Fatalf("driver frames: got %d, want 3", len(frames))
	}
	var indicator struct {
		Type     string `json:"type"`
		IsTyping bool   `json:"is_typing"`
	}
	if err := json.Unmarshal(frames[1], &indicator); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if indicator.Type != EventTypingIndicator || indicator.IsTyping {
		t.Errorf("second frame: got %+v, want typing_indicator false", indicator)
	}
	if typ := decodeType(t, frames[2]); typ != EventNewMessage {
		t.Errorf("third frame type: got %q, want %q", typ, EventNewMessage)
	}
}

func TestTypingIndicatorExcludesOriginator(t *testing.T) {
	t.Parallel()
	gw := newFrameTestGateway(&fakeMessageService{})
	conv := uuid.New()
	riderID := uuid.New()
	rider := newClient(gw, nil, conv, riderID)
	driver := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, rider)
	gw.hub.Join(conv, driver)

	gw.handleFrame(rider, []byte(`{"type":"typing_start"}`))

	if !gw.presence.IsTyping(conv, riderID) {
		t.Error("typing state not recorded")
	}
	if got := len(drain(rider)); got != 0 {
		t.Errorf("originator frames: got %d, want 0", got)
	}
	if got := len(drain(driver)); got != 1 {
		t.Errorf("counterpart frames: got %d, want 1", got)
	}
}

func TestMarkReadRoutesReceiptsToSenders(t *testing.T) {
	t.Parallel()
	conv := uuid.New()
	riderID := uuid.New()
	driverID := uuid.New()
	svc := &fakeMessageService{
		readResult: []models.Message{
			{ID: 3, ConversationID: conv, SenderID: riderID},
			{ID: 4, ConversationID: conv, SenderID: riderID},
		},
	}
	gw := newFrameTestGateway(svc)
	rider := newClient(gw, nil, conv, riderID)
	driver := newClient(gw, nil, conv, driverID)
	gw.hub.Join(conv, rider)
	gw.hub.Join(conv, driver)

	gw.handleFrame(driver, []byte(`{"type":"mark_read","message_ids":[3,4]}`))

	if len(svc.readCalls) != 1 {
		t.Fatalf("mark read calls: got %d, want 1", len(svc.readCalls))
	}
	if got := len(drain(driver)); got != 0 {
		t.Errorf("reader frames: got %d, want 0", got)
	}

	frames := drain(rider)
	if len(frames) != 2 {
		t.Fatalf("sender frames: got %d, want 2", len(frames))
	}
	wantIDs := []int64{3, 4}
	for i, fr := range frames {
		var decoded struct {
			Type      string    `json:"type"`
			MessageID int64     `json:"message_id"`
			ReadBy    uuid.UUID `json:"read_by"`
		}
		if err := json.Unmarshal(fr, &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Type != EventMessageRead || decoded.MessageID != wantIDs[i] || decoded.ReadBy != driverID {
			t.Errorf("receipt %d: got %+v", i, decoded)
		}
	}
}

func TestMarkReadRequiresMessageIDs(t *testing.T) {
	t.Parallel()
	svc := &fakeMessageService{}
	gw := newFrameTestGateway(svc)
	conv := uuid.New()
	c := newClient(gw, nil, conv, uuid.New())
	gw.hub.Join(conv, c)

	gw.handleFrame(c, []byte(`{"type":"mark_read"}`))

	if len(svc.readCalls) != 0 {
		t.Errorf("mark read calls: got %d, want 0", len(svc.readCalls))
	}
	frames := drain(c)
	if len(frames) != 1 {
		t.Fatalf("frames: got %d, want 1", len(frames))
	}
	if typ := decodeType(t, frames[0]); typ != EventError {
		t.Errorf("type: got %q, want %q", typ, EventError)
	}
}
