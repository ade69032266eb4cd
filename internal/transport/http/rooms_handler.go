package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/engine"
)

// RoomsHandler is the host-facing REST surface: creating a session room and
// peeking at its state. Quiz content itself is authored elsewhere.
type RoomsHandler struct {
	manager *engine.Manager
	log     zerolog.Logger
}

func NewRoomsHandler(manager *engine.Manager, log zerolog.Logger) *RoomsHandler {
	return &RoomsHandler{manager: manager, log: log}
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
	Code   string `json:"code,omitempty"`
}

type createRoomResponse struct {
	Code string `json:"code"`
}

// CreateRoom handles POST /rooms.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.QuizID == "" || req.HostID == "" {
		http.Error(w, "missing quizId or hostId", http.StatusBadRequest)
		return
	}

	code, err := h.manager.CreateRoom(r.Context(), req.Code, req.QuizID, req.HostID)
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, domain.ErrRoomExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Str("quiz", req.QuizID).Msg("room creation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRoomResponse{Code: code})
}

// RoomState handles GET /rooms/state?code=X for late leaderboard viewing.
func (h *RoomsHandler) RoomState(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	state, err := h.manager.State(code)
	if errors.Is(err, domain.ErrRoomNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}
