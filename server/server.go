// Package server exposes the REST API and the websocket endpoint. The
// handlers only ever touch the store and the token issuer; everything
// stateful about live connections goes through the hub.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/huddlechat/huddle/auth"
	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	cfg    *config.Config
	store  persistence.Store
	hub    *ws.Hub
	issuer *auth.TokenIssuer
}

func NewServer(cfg *config.Config, store persistence.Store, hub *ws.Hub, issuer *auth.TokenIssuer) *Server {
	return &Server{cfg: cfg, store: store, hub: hub, issuer: issuer}
}

// Router wires up all routes. The messages and rooms collections
// require a valid token, the auth endpoints and the health check do
// not.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/register", s.registerHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", s.loginHandler).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/rooms", s.listRoomsHandler).Methods(http.MethodGet)
	api.HandleFunc("/rooms", s.createRoomHandler).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}", s.getRoomHandler).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}", s.deleteRoomHandler).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{roomId}", s.roomMessagesHandler).Methods(http.MethodGet)
	api.HandleFunc("/messages/{roomId}/latest", s.latestMessagesHandler).Methods(http.MethodGet)

	router.HandleFunc("/ws", s.websocketHandler)
	return router
}

// websocketHandler is the connection gate: the token travels as a query
// parameter because browser websocket clients cannot set headers. An
// invalid token is rejected before the upgrade.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userId, err := s.issuer.VerifyToken(token)
	if err != nil {
		globals.AppLogger.Debug("websocket auth rejected", "error", err)
		http.Error(w, "Authentication error", http.StatusUnauthorized)
		return
	}
	user, err := s.store.GetUser(userId)
	if err != nil {
		http.Error(w, "Authentication error", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(s.hub, conn, user)
	s.hub.Register <- client
	go client.WriteLoop()
	go client.ReadLoop()
}
