package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"roomchat/internal/chat"
	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/repository"
	"roomchat/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxRoomNameLength        = 100
	maxRoomDescriptionLength = 500
)

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return userID, ok
}

func roomIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid Room ID format.")
		return uuid.Nil, false
	}
	return roomID, true
}

// loadRoom fetches the room or writes the 404 itself.
func loadRoom(w http.ResponseWriter, r *http.Request, rooms repository.RoomRepo, roomID uuid.UUID) (*models.Room, bool) {
	room, err := rooms.GetByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "Room not found.")
		} else {
			log.Printf("[ROOMS] Lookup failed for %s: %v", roomID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return nil, false
	}
	return room, true
}

// CreateRoom creates a room with the caller as creator and first
// member. Room names are unique.
func CreateRoom(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var payload types.CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		payload.Name = strings.TrimSpace(payload.Name)
		if payload.Name == "" || len(payload.Name) > maxRoomNameLength {
			writeError(w, http.StatusBadRequest, "Room name is required and must be at most 100 characters.")
			return
		}
		if len(payload.Description) > maxRoomDescriptionLength {
			writeError(w, http.StatusBadRequest, "Room description must be at most 500 characters.")
			return
		}

		room := &models.Room{
			ID:          uuid.New(),
			Name:        payload.Name,
			Description: payload.Description,
			IsPrivate:   payload.IsPrivate,
			Members:     []string{userID},
			CreatedBy:   userID,
		}

		if err := rooms.Create(r.Context(), room); err != nil {
			if errors.Is(err, repository.ErrDuplicateRoom) {
				writeError(w, http.StatusConflict, "Room with this name already exists.")
				return
			}
			log.Printf("[ROOMS] Create failed for %q: %v", payload.Name, err)
			writeError(w, http.StatusInternalServerError, "Failed to create room")
			return
		}

		writeJSON(w, http.StatusCreated, room)
	}
}

// ListRooms returns rooms visible to the caller: public rooms plus
// private rooms they belong to, most recently active first.
func ListRooms(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		visible, err := rooms.ListVisible(r.Context(), userID)
		if err != nil {
			log.Printf("[ROOMS] List failed for user %s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "Failed to list rooms")
			return
		}
		if visible == nil {
			visible = []*models.Room{}
		}

		writeJSON(w, http.StatusOK, visible)
	}
}

func GetRoom(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, ok := roomIDParam(w, r)
		if !ok {
			return
		}
		room, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}

		if room.IsPrivate && !room.HasMember(userID) {
			writeError(w, http.StatusForbidden, "Not authorized to view this room.")
			return
		}

		writeJSON(w, http.StatusOK, room)
	}
}

// JoinRoom lets the caller add themselves to a public room.
func JoinRoom(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, ok := roomIDParam(w, r)
		if !ok {
			return
		}
		room, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}

		if room.IsPrivate && !room.HasMember(userID) {
			writeError(w, http.StatusForbidden, "Cannot join a private room without an invite.")
			return
		}

		if err := rooms.AddMember(r.Context(), roomID, userID); err != nil {
			log.Printf("[ROOMS] Join failed for user %s in room %s: %v", userID, roomID, err)
			writeError(w, http.StatusInternalServerError, "Failed to join room")
			return
		}

		updated, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// AddMember lets the room creator add another user.
func AddMember(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, ok := roomIDParam(w, r)
		if !ok {
			return
		}

		var payload types.AddMemberRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.MemberID == "" {
			writeError(w, http.StatusBadRequest, "memberId is required.")
			return
		}

		room, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}

		if room.CreatedBy != userID {
			writeError(w, http.StatusForbidden, "Not authorized to add members to this room.")
			return
		}

		if err := rooms.AddMember(r.Context(), roomID, payload.MemberID); err != nil {
			log.Printf("[ROOMS] Add member failed for %s in room %s: %v", payload.MemberID, roomID, err)
			writeError(w, http.StatusInternalServerError, "Failed to add member")
			return
		}

		updated, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// RemoveMember removes a member: the creator can remove anyone, a
// member can remove themselves. The creator cannot be removed, which
// keeps the creator-is-always-a-member invariant.
func RemoveMember(rooms repository.RoomRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, ok := roomIDParam(w, r)
		if !ok {
			return
		}
		memberID := chi.URLParam(r, "memberID")

		room, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}

		isCreator := room.CreatedBy == userID
		isSelf := memberID == userID
		if !isCreator && !isSelf {
			writeError(w, http.StatusForbidden, "Not authorized to remove this member from this room.")
			return
		}
		if memberID == room.CreatedBy {
			writeError(w, http.StatusForbidden, "The room creator cannot be removed.")
			return
		}

		if err := rooms.RemoveMember(r.Context(), roomID, memberID); err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				writeError(w, http.StatusNotFound, "Member not found in room.")
				return
			}
			log.Printf("[ROOMS] Remove member failed for %s in room %s: %v", memberID, roomID, err)
			writeError(w, http.StatusInternalServerError, "Failed to remove member")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteRoom removes the room (creator only) and closes any live
// connections still subscribed to it.
func DeleteRoom(rooms repository.RoomRepo, registry *chat.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		roomID, ok := roomIDParam(w, r)
		if !ok {
			return
		}
		room, ok := loadRoom(w, r, rooms, roomID)
		if !ok {
			return
		}

		if room.CreatedBy != userID {
			writeError(w, http.StatusForbidden, "Not authorized to delete this room.")
			return
		}

		if err := rooms.Delete(r.Context(), roomID); err != nil {
			log.Printf("[ROOMS] Delete failed for room %s: %v", roomID, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete room")
			return
		}

		registry.CloseRoom(roomID)
		w.WriteHeader(http.StatusNoContent)
	}
}
