package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/config"
	"roomchat/internal/middleware"
	"roomchat/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// closeWith rejects an already-upgraded connection with a close code
// and a human-readable reason, before any registry mutation.
func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// ServeWS admits a connection to a room's live stream. Admission is
// authenticate, load room, check membership, in that order; any failure
// closes the socket with a distinguishing reason and the connection
// never reaches the registry.
func ServeWS(cfg *config.Config, verifier *auth.Verifier, rooms repository.RoomRepo, registry *chat.Registry, pipeline *chat.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawRoomID := chi.URLParam(r, "roomID")
		token := middleware.BearerToken(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		// A hung identity or directory lookup must not wedge admission.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AdmissionTimeout)
		defer cancel()

		userID, err := verifier.Verify(token)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "Authentication failed.")
			return
		}

		roomID, err := uuid.Parse(rawRoomID)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "Invalid room ID format.")
			return
		}

		room, err := rooms.GetByID(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				closeWith(conn, websocket.ClosePolicyViolation, "Room not found.")
				return
			}
			log.Printf("[WS] Room lookup failed during admission for %s: %v", rawRoomID, err)
			closeWith(conn, websocket.CloseInternalServerErr, "Server error.")
			return
		}

		if !room.HasMember(userID) {
			closeWith(conn, websocket.ClosePolicyViolation, "Not authorized to access this room.")
			return
		}

		limiter := middleware.NewRatelimiter(5, 500*time.Millisecond)
		client := chat.NewClient(conn, roomID, userID, cfg.SendBufferSize, limiter)

		registry.Register(roomID, client)

		go client.WritePump(registry)
		go client.ReadPump(registry, pipeline)
	}
}
