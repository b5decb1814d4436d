package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"roomchat/internal/repository"

	"github.com/go-chi/chi/v5"
)

// DeleteMessage removes a persisted message. Only the original sender
// may delete it; messages are otherwise immutable.
func DeleteMessage(messages repository.MessageRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid Message ID format.")
			return
		}

		msg, err := messages.GetByID(r.Context(), messageID)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				writeError(w, http.StatusNotFound, "Message not found.")
				return
			}
			log.Printf("[MESSAGES] Lookup failed for %d: %v", messageID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if msg.UserID != userID {
			writeError(w, http.StatusForbidden, "Not authorized to delete this message.")
			return
		}

		if err := messages.Delete(r.Context(), messageID); err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				writeError(w, http.StatusNotFound, "Message not found.")
				return
			}
			log.Printf("[MESSAGES] Delete failed for %d: %v", messageID, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete message")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
