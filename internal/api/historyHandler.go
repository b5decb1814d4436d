package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"roomchat/internal/config"
	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/repository"
	"roomchat/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// History serves a page of a room's persisted messages, oldest first.
// Membership is checked fresh on every request; holding a live
// connection grants nothing here.
func History(cfg *config.Config, rooms repository.RoomRepo, messages repository.MessageRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid Room ID format.")
			return
		}

		skip := 0
		if raw := r.URL.Query().Get("skip"); raw != "" {
			skip, err = strconv.Atoi(raw)
			if err != nil || skip < 0 {
				writeError(w, http.StatusBadRequest, "Invalid skip parameter.")
				return
			}
		}

		limit := cfg.HistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "Invalid limit parameter.")
				return
			}
		}
		if limit > cfg.HistoryMaxLimit {
			limit = cfg.HistoryMaxLimit
		}

		room, err := rooms.GetByID(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				writeError(w, http.StatusNotFound, "Room not found.")
				return
			}
			log.Printf("[HISTORY] Room lookup failed for %s: %v", roomID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if !room.HasMember(userID) {
			writeError(w, http.StatusForbidden, "Not authorized to view messages in this room.")
			return
		}

		page, total, err := messages.History(r.Context(), roomID, skip, limit)
		if err != nil {
			log.Printf("[HISTORY] Fetch failed for room %s: %v", roomID, err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
			return
		}
		if page == nil {
			page = []*models.Message{}
		}

		writeJSON(w, http.StatusOK, types.HistoryResponse{
			Messages: page,
			Total:    total,
			Skip:     skip,
			Limit:    limit,
		})
	}
}
