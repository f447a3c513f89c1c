package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trafficsentinel/internal/logger"
	hub "trafficsentinel/internal/services/websocket"
)

const progressReadTimeout = 60 * time.Second

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ProgressWebsocketHandler subscribes a viewer to the progress of the upload
// identified by the token query parameter.
func ProgressWebsocketHandler(hubService *hub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token parameter is required", http.StatusBadRequest)
			return
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(progressReadTimeout))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(progressReadTimeout))
			return nil
		})

		hubService.Register(connection, token)
		defer hubService.Unregister(connection)

		// Viewer wysyła tylko keepalive
		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				break
			}
			connection.SetReadDeadline(time.Now().Add(progressReadTimeout))
		}
	}
}
