package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/Tasks"
	"roomchat/internal/api"
	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/db"
	myMiddleware "roomchat/internal/middleware"
	"roomchat/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {

	cfg := config.Load()

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer pool.Close()

	verifier := auth.NewVerifier(cfg.AuthKey)
	roomRepo := repository.NewRoomRepo(pool)
	messageRepo := repository.NewMessagesRepo(pool)

	registry := chat.NewRegistry()
	pipeline := chat.NewPipeline(registry, messageRepo, roomRepo, cfg.MaxMessageLength)

	sweeper := tasks.NewRoomSweeper(registry, roomRepo)
	sweeper.Start()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Admission failures surface as websocket close frames, so the
	// live route handles its own auth instead of using the middleware.
	r.Get("/ws/{roomID}", api.ServeWS(cfg, verifier, roomRepo, registry, pipeline))

	r.Group(func(r chi.Router) {
		r.Use(myMiddleware.Authenticate(verifier))

		r.Post("/rooms", api.CreateRoom(roomRepo))
		r.Get("/rooms", api.ListRooms(roomRepo))
		r.Get("/rooms/{roomID}", api.GetRoom(roomRepo))
		r.Post("/rooms/{roomID}/join", api.JoinRoom(roomRepo))
		r.Post("/rooms/{roomID}/members", api.AddMember(roomRepo))
		r.Delete("/rooms/{roomID}/members/{memberID}", api.RemoveMember(roomRepo))
		r.Delete("/rooms/{roomID}", api.DeleteRoom(roomRepo, registry))

		r.Get("/rooms/{roomID}/messages", api.History(cfg, roomRepo, messageRepo))
		r.Delete("/messages/{messageID}", api.DeleteMessage(messageRepo))
	})

	addr := cfg.Host + ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: r}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Printf("Server starting on %s...\n", addr)
		if err := server.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				log.Fatalf("ListenAndServe: %v", err)
			}
		}
	}()

	<-stop

	fmt.Println("\nShutdown signal received. Cleaning up...")
	registry.CloseAll()
	server.Close()

	time.Sleep(1 * time.Second)
	fmt.Println("Graceful shutdown complete.")
}
