package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/huddlechat/huddle/auth"
	"github.com/huddlechat/huddle/errors"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/types"
	"github.com/huddlechat/huddle/validation"
	"github.com/samber/lo"
)

var validate = validator.New()

type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

type createRoomRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description"`
}

type paginationInfo struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalMessages int  `json:"totalMessages"`
	HasMore       bool `json:"hasMore"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

func decodeBody(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return err
	}
	return validate.Struct(out)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "timestamp": time.Now()})
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	req := credentialsRequest{}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid username or password format")
		return
	}
	if !validation.IsValidUsername(req.Username) {
		writeError(w, http.StatusBadRequest, "Username may only contain letters, digits and underscores")
		return
	}
	if _, err := s.store.GetUserByUsername(req.Username); err == nil {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}
	user := &types.User{
		Id:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		LastSeen:     time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(user); err != nil {
		globals.AppLogger.Error("could not create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}
	token, err := s.issuer.GenerateToken(user.Id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}
	globals.AppLogger.Info("user registered", "user", user.Username)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "token": token, "user": user.Public()})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	req := credentialsRequest{}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid username or password format")
		return
	}
	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !auth.ComparePassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.issuer.GenerateToken(user.Id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}
	user.LastSeen = time.Now()
	if err := s.store.SaveUser(user); err != nil {
		globals.AppLogger.Error("could not update last seen", "user", user.Id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "token": token, "user": user.Public()})
}

func (s *Server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ActiveRooms()
	if err != nil {
		globals.AppLogger.Error("could not list rooms", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching rooms")
		return
	}
	// the listing stays light, member details come with the room detail
	listing := lo.Map(rooms, func(room *types.Room, _ int) types.Room {
		r := *room
		r.Members = nil
		return r
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "rooms": listing})
}

func (s *Server) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	req := createRoomRequest{}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid room name or description")
		return
	}
	name := validation.SanitizeInput(req.Name)
	if !validation.IsValidRoomName(name) || !validation.IsValidDescription(req.Description) {
		writeError(w, http.StatusBadRequest, "Invalid room name or description")
		return
	}
	if _, err := s.store.GetRoomByName(name); err == nil {
		writeError(w, http.StatusBadRequest, errors.ErrRoomNameTaken.Error())
		return
	}

	user := requestUser(r)
	room := &types.Room{
		Id:           uuid.NewString(),
		Name:         name,
		Description:  validation.SanitizeInput(req.Description),
		CreatedById:  user.Id,
		Members:      []string{user.Id},
		IsActive:     true,
		LastActivity: time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateRoom(room); err != nil {
		globals.AppLogger.Error("could not create room", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error creating room")
		return
	}
	globals.AppLogger.Info("room created", "room", room.Name, "by", user.Username)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "room": room})
}

func (s *Server) getRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.GetRoom(mux.Vars(r)["id"])
	if err != nil || !room.IsActive {
		writeError(w, http.StatusNotFound, errors.ErrRoomNotFound.Error())
		return
	}
	members := make([]types.PublicUser, 0, len(room.Members))
	for _, userId := range room.Members {
		user, err := s.store.GetUser(userId)
		if err != nil {
			continue
		}
		members = append(members, user.Public())
	}
	detail := *room
	detail.Members = nil
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "room": detail, "members": members})
}

// deleteRoomHandler deactivates a room. Messages and membership stay
// persisted; only the creator may do this.
func (s *Server) deleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.GetRoom(mux.Vars(r)["id"])
	if err != nil || !room.IsActive {
		writeError(w, http.StatusNotFound, errors.ErrRoomNotFound.Error())
		return
	}
	if room.CreatedById != requestUser(r).Id {
		writeError(w, http.StatusForbidden, errors.ErrForbidden.Error())
		return
	}
	room.IsActive = false
	if err := s.store.SaveRoom(room); err != nil {
		globals.AppLogger.Error("could not deactivate room", "room", room.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error deleting room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Room deleted successfully"})
}

func (s *Server) roomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	if _, err := s.store.GetRoom(roomId); err != nil {
		writeError(w, http.StatusNotFound, errors.ErrRoomNotFound.Error())
		return
	}

	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	limit := s.cfg.History.PageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= s.cfg.History.PageLimit {
		limit = v
	}

	messages, err := s.store.RoomMessages(roomId, page, limit)
	if err != nil {
		globals.AppLogger.Error("could not load messages", "room", roomId, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching messages")
		return
	}
	total, err := s.store.CountRoomMessages(roomId)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error fetching messages")
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
		"pagination": paginationInfo{
			CurrentPage:   page,
			TotalPages:    totalPages,
			TotalMessages: total,
			HasMore:       page < totalPages,
		},
	})
}

func (s *Server) latestMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["roomId"]
	if _, err := s.store.GetRoom(roomId); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.ErrRoomNotFound.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "Server error fetching messages")
		}
		return
	}
	limit := s.cfg.History.PageLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= s.cfg.History.PageLimit {
		limit = v
	}
	messages, err := s.store.LatestRoomMessages(roomId, limit)
	if err != nil {
		globals.AppLogger.Error("could not load messages", "room", roomId, "error", err)
		writeError(w, http.StatusInternalServerError, "Server error fetching messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "messages": messages})
}
