package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swiftcab/chat-service/chat"
	"github.com/swiftcab/chat-service/config"
	"github.com/swiftcab/chat-service/db"
	"github.com/swiftcab/chat-service/services"
	"github.com/swiftcab/chat-service/services/jwt"
)

type Server struct {
	Config         *config.Config
	ChatRepository db.ChatRepository
	ChatService    services.ChatService
	MediaService   services.MediaService
	TokenVerifier  *jwt.TokenVerifier
	Hub            *chat.Hub
	Presence       *chat.PresenceTracker
	Gateway        *chat.Gateway
	DB             db.GormDB
}

// Start runs the HTTP server and the presence sweep until interrupted.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Presence.Run(ctx, s.Config.PresenceSweepInterval, s.Config.TypingTTL)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Port),
		Handler: s.setupRouter(),
	}

	go func() {
		log.Printf("chat gateway listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
