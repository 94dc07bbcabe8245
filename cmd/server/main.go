package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/config"
	"collabspace-backend/internal/database"
	"collabspace-backend/internal/handler"
	"collabspace-backend/internal/presence"
	"collabspace-backend/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("[main] database connection failed: %v", err)
	}
	defer database.Close()

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)

	// Online status runs on Redis; the server stays up without it
	status, err := presence.NewStatusManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("[main] redis unavailable, online status disabled: %v", err)
		status = nil
	} else {
		defer status.Close()
	}

	registry := presence.NewRegistry()
	boards := handler.NewBoardHub(registry, handler.NewBoardStore(db), cfg.Board.CursorThrottle, cfg.Board.CursorStaleAfter)
	voice := handler.NewVoiceHub(handler.NewMembershipChecker(db))
	realtime := handler.NewRealtimeHandler(cfg, db, boards, voice, status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go boards.Run(ctx)

	srv := server.New(cfg, db, jwtManager, realtime, status)

	go func() {
		if err := srv.Listen(); err != nil {
			log.Fatalf("[main] server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] shutting down")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Printf("[main] shutdown error: %v", err)
	}
}
