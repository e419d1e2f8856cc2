package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/chat"
	"github.com/swiftcab/chat-service/config"
	"github.com/swiftcab/chat-service/db"
	"github.com/swiftcab/chat-service/server"
	"github.com/swiftcab/chat-service/services"
	"github.com/swiftcab/chat-service/services/jwt"
)

func main() {
	purge := flag.Bool("purge", false, "run the message retention purge and exit")
	flag.Parse()

	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	chatRepo := db.NewChatRepo(gormDB)

	notifier := services.NewNotificationService(buildChannels(conf)...)
	chatService := services.NewChatService(chatRepo, notifier)

	if *purge {
		purged, err := chatService.PurgeDeletedMessages(conf.MessageRetention)
		if err != nil {
			log.Fatalf("retention purge: %v", err)
		}
		log.Printf("retention purge removed %d messages", purged)
		return
	}

	mediaService, err := services.NewMediaService(conf)
	if err != nil {
		log.Fatalf("media service: %v", err)
	}

	tokenVerifier := jwt.NewTokenVerifier(conf.JWTSecret)
	hub := chat.NewHub()
	presence := chat.NewPresenceTracker()
	gateway := chat.NewGateway(hub, presence, chatService, tokenVerifier, conf)

	s := &server.Server{
		Config:         conf,
		ChatRepository: chatRepo,
		ChatService:    chatService,
		MediaService:   mediaService,
		TokenVerifier:  tokenVerifier,
		Hub:            hub,
		Presence:       presence,
		Gateway:        gateway,
		DB:             db.GormDB{},
	}

	s.Start()
}

// buildChannels wires the configured offline-delivery channels. Device
// tokens and email addresses are owned by the account service; until its
// lookup endpoint is consumed here the providers report the recipient as
// unreachable and the dispatcher just logs.
// TODO: replace the stub providers with the account-service lookup client.
func buildChannels(conf *config.Config) []services.NotificationChannel {
	var channels []services.NotificationChannel

	unreachable := errors.New("recipient contact lookup not configured")

	fcm, err := services.NewFCMChannel(context.Background(), conf.FirebaseCredentialsFile,
		func(userID uuid.UUID) (string, error) { return "", unreachable })
	if err != nil {
		log.Printf("fcm channel disabled: %v", err)
	} else {
		channels = append(channels, fcm)
	}

	if conf.MgDomain != "" && conf.MailgunApiKey != "" {
		channels = append(channels, services.NewMailgunChannel(conf.MgDomain, conf.MailgunApiKey, conf.MgEmailFrom,
			func(userID uuid.UUID) (string, error) { return "", unreachable }))
	}

	return channels
}
