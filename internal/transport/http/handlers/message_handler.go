package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/service"
	"github.com/eaaaarl/iChat-Web/internal/transport/http/middleware"
	"github.com/eaaaarl/iChat-Web/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

type markReadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type markReadResponse struct {
	IDs []uuid.UUID `json:"ids"`
}

type unreadResponse struct {
	Count int `json:"count"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID, ok := peerParam(w, r)
	if !ok {
		return
	}

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateSendMessage(input.Content, input.Nonce); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, peerID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "MISSING_CONTENT", "Message content is required")
		case errors.Is(err, service.ErrMessageTooLong):
			writeError(w, http.StatusBadRequest, "CONTENT_TOO_LONG", "Message content is too long")
		case errors.Is(err, service.ErrCannotMessageSelf):
			writeError(w, http.StatusBadRequest, "SELF_MESSAGE", "You cannot message yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			log.Printf("ERROR send message: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List returns the whole conversation with the peer, oldest first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID, ok := peerParam(w, r)
	if !ok {
		return
	}

	messages, err := h.messageService.Conversation(r.Context(), userID, peerID)
	if err != nil {
		log.Printf("ERROR list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Last returns the newest message with the peer, or null.
func (h *MessageHandler) Last(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID, ok := peerParam(w, r)
	if !ok {
		return
	}

	msg, err := h.messageService.Last(r.Context(), userID, peerID)
	if err != nil {
		log.Printf("ERROR last message: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Unread counts the peer's messages the caller has not read.
func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID, ok := peerParam(w, r)
	if !ok {
		return
	}

	n, err := h.messageService.CountUnread(r.Context(), userID, peerID)
	if err != nil {
		log.Printf("ERROR count unread: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, unreadResponse{Count: n})
}

// MarkRead marks the given messages read. Ids the caller did not receive are
// ignored; the response lists the ids that changed.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	changed, err := h.messageService.MarkRead(r.Context(), userID, input.IDs)
	if err != nil {
		log.Printf("ERROR mark read: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, markReadResponse{IDs: changed})
}

func peerParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	peerID, err := uuid.Parse(r.PathValue("peer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid peer ID")
		return uuid.Nil, false
	}
	return peerID, true
}
