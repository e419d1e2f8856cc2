package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/chat"
	"github.com/swiftcab/chat-service/config"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
	"github.com/swiftcab/chat-service/services"
	"github.com/swiftcab/chat-service/services/jwt"
)

// restFakeChatService serves the handler tests; only the calls the tests
// exercise have behavior, the rest return not found.
type restFakeChatService struct {
	conv     *models.Conversation
	messages map[int64]*models.Message

	createCalls int
}

func newRestFakeChatService(conv *models.Conversation) *restFakeChatService {
	return &restFakeChatService{conv: conv, messages: make(map[int64]*models.Message)}
}

func (f *restFakeChatService) GetOrCreateConversation(rideID, riderID, driverID uuid.UUID) (*models.Conversation, bool, error) {
	f.createCalls++
	if f.conv != nil && f.conv.RideID == rideID {
		return f.conv, false, nil
	}
	f.conv = &models.Conversation{
		ID: uuid.New(), RideID: rideID, RiderID: riderID, DriverID: driverID,
		Status: models.ConversationStatusActive,
	}
	return f.conv, true, nil
}

func (f *restFakeChatService) GetConversation(id uuid.UUID) (*models.Conversation, error) {
	if f.conv == nil || f.conv.ID != id {
		return nil, apiError.ErrNotFound
	}
	return f.conv, nil
}

func (f *restFakeChatService) ArchiveConversation(id uuid.UUID) error {
	if f.conv == nil || f.conv.ID != id {
		return apiError.ErrNotFound
	}
	f.conv.Status = models.ConversationStatusArchived
	return nil
}

func (f *restFakeChatService) SoftDeleteConversation(id uuid.UUID) error {
	if f.conv == nil || f.conv.ID != id {
		return apiError.ErrNotFound
	}
	f.conv.Status = models.ConversationStatusDeleted
	return nil
}

func (f *restFakeChatService) CreateMessage(params services.CreateMessageParams) (*models.Message, error) {
	return nil, apiError.ErrNotFound
}

func (f *restFakeChatService) GetMessages(conversationID, userID uuid.UUID, limit int, beforeID *int64) ([]models.Message, error) {
	if f.conv == nil || f.conv.ID != conversationID {
		return nil, apiError.ErrNotFound
	}
	if !f.conv.HasParticipant(userID) {
		return nil, apiError.ErrNotParticipant
	}
	var out []models.Message
	for _, m := range f.messages {
		if len(out) == limit {
			break
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *restFakeChatService) MarkDelivered(messageID int64) error { return nil }

func (f *restFakeChatService) MarkRead(conversationID uuid.UUID, messageIDs []int64, readerID uuid.UUID) ([]models.Message, error) {
	return nil, nil
}

func (f *restFakeChatService) EditMessage(messageID int64, editorID uuid.UUID, content string) (*models.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, apiError.ErrNotFound
	}
	if msg.SenderID != editorID {
		return nil, apiError.ErrNotSender
	}
	if msg.IsDeleted {
		return nil, apiError.ErrAlreadyDeleted
	}
	msg.Content = content
	msg.IsEdited = true
	cp := *msg
	return &cp, nil
}

func (f *restFakeChatService) SoftDeleteMessage(messageID int64, requesterID uuid.UUID) (*models.Message, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, apiError.ErrNotFound
	}
	if msg.SenderID != requesterID {
		return nil, apiError.ErrNotSender
	}
	msg.Content = models.DeletedMessagePlaceholder
	msg.IsDeleted = true
	cp := *msg
	return &cp, nil
}

func (f *restFakeChatService) PurgeDeletedMessages(retention time.Duration) (int64, error) {
	return 0, nil
}

type restFixture struct {
	router  *gin.Engine
	svc     *restFakeChatService
	conv    *models.Conversation
	riderID uuid.UUID
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()
	t.Setenv("GIN_MODE", "test")
	gin.SetMode(gin.TestMode)

	conf := &config.Config{
		JWTSecret:          testSecret,
		PingInterval:       30 * time.Second,
		WriteWait:          10 * time.Second,
		MessagePageSize:    50,
		MessagePageSizeMax: 100,
	}
	riderID := uuid.New()
	conv := &models.Conversation{
		ID: uuid.New(), RideID: uuid.New(),
		RiderID: riderID, DriverID: uuid.New(),
		Status: models.ConversationStatusActive,
	}
	svc := newRestFakeChatService(conv)
	s := &Server{
		Config:        conf,
		ChatService:   svc,
		TokenVerifier: jwt.NewTokenVerifier(testSecret),
		Hub:           chat.NewHub(),
	}
	return &restFixture{router: s.setupRouter(), svc: svc, conv: conv, riderID: riderID}
}

func (fx *restFixture) request(t *testing.T, method, path string, body interface{}, userID *uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != nil {
		token, err := jwt.GenerateToken(*userID, testSecret)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func TestCreateConversationEndpoint(t *testing.T) {
	fx := newRESTFixture(t)
	caller := uuid.New()

	body := gin.H{
		"ride_id":   uuid.New(),
		"rider_id":  uuid.New(),
		"driver_id": uuid.New(),
	}
	w := fx.request(t, http.MethodPost, "/api/v1/chat/conversations", body, &caller)
	if w.Code != http.StatusCreated {
		t.Fatalf("first call: got %d, want %d: %s", w.Code, http.StatusCreated, w.Body)
	}

	// Same ride id again: same conversation, plain 200.
	body["rider_id"] = fx.svc.conv.RiderID
	body["driver_id"] = fx.svc.conv.DriverID
	body["ride_id"] = fx.svc.conv.RideID
	w = fx.request(t, http.MethodPost, "/api/v1/chat/conversations", body, &caller)
	if w.Code != http.StatusOK {
		t.Fatalf("second call: got %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	// Missing fields are rejected before the service is touched.
	calls := fx.svc.createCalls
	w = fx.request(t, http.MethodPost, "/api/v1/chat/conversations", gin.H{"ride_id": uuid.New()}, &caller)
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial body: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	if fx.svc.createCalls != calls {
		t.Error("service called despite invalid body")
	}
}

func TestGetMessagesEndpointAuth(t *testing.T) {
	fx := newRESTFixture(t)
	path := "/api/v1/chat/" + fx.conv.ID.String() + "/messages"

	w := fx.request(t, http.MethodGet, path, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want %d", w.Code, http.StatusUnauthorized)
	}

	stranger := uuid.New()
	w = fx.request(t, http.MethodGet, path, nil, &stranger)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-participant: got %d, want %d: %s", w.Code, http.StatusForbidden, w.Body)
	}

	w = fx.request(t, http.MethodGet, path, nil, &fx.riderID)
	if w.Code != http.StatusOK {
		t.Errorf("participant: got %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	w = fx.request(t, http.MethodGet, path+"?limit=abc", nil, &fx.riderID)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEditMessageEndpointBroadcasts(t *testing.T) {
	fx := newRESTFixture(t)
	fx.svc.messages[5] = &models.Message{
		ID: 5, ConversationID: fx.conv.ID, SenderID: fx.riderID, Content: "original",
	}

	w := fx.request(t, http.MethodPut, "/api/v1/chat/messages/5", gin.H{"content": "fixed"}, &fx.riderID)
	if w.Code != http.StatusOK {
		t.Fatalf("edit: got %d: %s", w.Code, w.Body)
	}
	if got := fx.svc.messages[5].Content; got != "fixed" {
		t.Errorf("content: got %q", got)
	}

	other := uuid.New()
	w = fx.request(t, http.MethodPut, "/api/v1/chat/messages/5", gin.H{"content": "hijack"}, &other)
	if w.Code != http.StatusForbidden {
		t.Errorf("edit by non-sender: got %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestDeleteMessageEndpoint(t *testing.T) {
	fx := newRESTFixture(t)
	fx.svc.messages[8] = &models.Message{
		ID: 8, ConversationID: fx.conv.ID, SenderID: fx.riderID, Content: "oops",
	}

	w := fx.request(t, http.MethodDelete, "/api/v1/chat/messages/8", nil, &fx.riderID)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d: %s", w.Code, w.Body)
	}

	var envelope struct {
		Data models.Message `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Content != models.DeletedMessagePlaceholder {
		t.Errorf("content: got %q, want placeholder", envelope.Data.Content)
	}
	if !envelope.Data.IsDeleted {
		t.Error("is_deleted not set in response")
	}
}

func TestConversationLifecycleEndpoints(t *testing.T) {
	fx := newRESTFixture(t)
	caller := uuid.New()
	base := "/api/v1/chat/" + fx.conv.ID.String()

	w := fx.request(t, http.MethodPost, base+"/archive", nil, &caller)
	if w.Code != http.StatusOK {
		t.Fatalf("archive: got %d: %s", w.Code, w.Body)
	}
	if fx.conv.Status != models.ConversationStatusArchived {
		t.Errorf("status: got %s, want archived", fx.conv.Status)
	}

	w = fx.request(t, http.MethodDelete, base, nil, &caller)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d: %s", w.Code, w.Body)
	}
	if fx.conv.Status != models.ConversationStatusDeleted {
		t.Errorf("status: got %s, want deleted", fx.conv.Status)
	}
}
