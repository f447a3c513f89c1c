package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trafficsentinel/internal/logger"
)

const writeWait = 10 * time.Second

// Processing stages reported to viewers.
const (
	StageProcessing = "processing"
	StageDone       = "done"
	StageError      = "error"
)

// Progress is one update about an upload being processed.
type Progress struct {
	Token      string  `json:"token"`
	Stage      string  `json:"stage"`
	Frame      int     `json:"frame"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
	AnalysisID int64   `json:"analysis_id,omitempty"`
	Message    string  `json:"message,omitempty"`
}

type subscription struct {
	conn  *websocket.Conn
	token string
}

// HubService fans progress updates out to the browsers waiting on an upload.
// Each connection subscribes to a single client token.
type HubService struct {
	clients    map[*websocket.Conn]string
	broadcast  chan Progress
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan Progress, 64),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			h.mutex.Lock()
			h.clients[sub.conn] = sub.token
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Progress viewer connected. Total: %d", total)

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Progress viewer disconnected. Total: %d", total)

		case p := <-h.broadcast:
			h.send(p)
		}
	}
}

func (h *HubService) send(p Progress) {
	message, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("Error encoding progress: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, token := range h.clients {
		if token != p.Token {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending progress: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *HubService) Register(conn *websocket.Conn, token string) {
	select {
	case h.register <- subscription{conn: conn, token: token}:
	case <-h.done:
		conn.Close()
	}
}

func (h *HubService) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues an update. Updates are dropped when the queue is full so
// processing never waits on slow viewers.
func (h *HubService) Publish(p Progress) {
	if p.Token == "" {
		return
	}
	select {
	case h.broadcast <- p:
	default:
		h.logger.Warning("Progress queue full - dropping update for %s", p.Token)
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
