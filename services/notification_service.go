package services

import (
	"context"
	"log"
	"strconv"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/google/uuid"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/pkg/errors"
	"github.com/swiftcab/chat-service/models"
	"google.golang.org/api/option"
)

const (
	previewLimit   = 100
	enqueueTimeout = 10 * time.Second
	pushAttempts   = 2
)

// NotificationChannel submits one best-effort notification job. The contract
// is "enqueued, at most": failures are logged by the dispatcher, never
// surfaced to the send path.
type NotificationChannel interface {
	Name() string
	Enqueue(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error
}

// NotificationService fans a new message out to offline-delivery channels
// for the participant who is not currently looking at the chat.
type NotificationService interface {
	NotifyNewMessage(msg *models.Message, conv *models.Conversation)
}

type notificationService struct {
	channels []NotificationChannel
}

// NewNotificationService instantiates a notificationService over the given
// channels. Channels are tried in order until one accepts the job.
func NewNotificationService(channels ...NotificationChannel) NotificationService {
	return &notificationService{channels: channels}
}

// NotifyNewMessage resolves the recipient and dispatches asynchronously,
// decoupled from message persistence.
func (s *notificationService) NotifyNewMessage(msg *models.Message, conv *models.Conversation) {
	recipient := conv.OtherParticipant(msg.SenderID)
	preview := truncatePreview(msg.Content, previewLimit)
	data := map[string]string{
		"conversation_id": conv.ID.String(),
		"message_id":      strconv.FormatInt(msg.ID, 10),
		"sender_id":       msg.SenderID.String(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()

		for _, ch := range s.channels {
			if err := s.enqueueWithRetry(ctx, ch, recipient, preview, data); err != nil {
				log.Printf("notification via %s for user %s failed: %v", ch.Name(), recipient, err)
				continue
			}
			return
		}
	}()
}

func (s *notificationService) enqueueWithRetry(ctx context.Context, ch NotificationChannel, recipient uuid.UUID, preview string, data map[string]string) error {
	var err error
	for attempt := 0; attempt < pushAttempts; attempt++ {
		if err = ch.Enqueue(ctx, recipient, "New message", preview, data); err == nil {
			return nil
		}
	}
	return err
}

func truncatePreview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "…"
}

// DeviceTokenProvider resolves a user id to their push token. Device
// registration is owned by the account service.
type DeviceTokenProvider func(userID uuid.UUID) (string, error)

// fcmChannel delivers through Firebase Cloud Messaging.
type fcmChannel struct {
	client *messaging.Client
	tokens DeviceTokenProvider
}

// NewFCMChannel initializes the Firebase app and messaging client from a
// credentials file.
func NewFCMChannel(ctx context.Context, credentialsFile string, tokens DeviceTokenProvider) (NotificationChannel, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting messaging client")
	}
	return &fcmChannel{client: client, tokens: tokens}, nil
}

func (c *fcmChannel) Name() string { return "fcm" }

func (c *fcmChannel) Enqueue(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	token, err := c.tokens(userID)
	if err != nil {
		return errors.Wrap(err, "resolving device token")
	}

	_, err = c.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	return err
}

// EmailAddressProvider resolves a user id to their email address.
type EmailAddressProvider func(userID uuid.UUID) (string, error)

// mailgunChannel is the email fallback when push delivery is unavailable.
type mailgunChannel struct {
	mg     *mailgun.MailgunImpl
	from   string
	emails EmailAddressProvider
}

func NewMailgunChannel(domain, apiKey, from string, emails EmailAddressProvider) NotificationChannel {
	return &mailgunChannel{
		mg:     mailgun.NewMailgun(domain, apiKey),
		from:   from,
		emails: emails,
	}
}

func (c *mailgunChannel) Name() string { return "mailgun" }

func (c *mailgunChannel) Enqueue(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	to, err := c.emails(userID)
	if err != nil {
		return errors.Wrap(err, "resolving email address")
	}

	m := c.mg.NewMessage(c.from, title, body, to)
	_, _, err = c.mg.Send(ctx, m)
	return err
}
