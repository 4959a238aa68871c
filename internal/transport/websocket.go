package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

const (
	defaultStatusInterval = time.Second
	writeWait             = 5 * time.Second
	tradeBuffer           = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if originURL.Host == r.Host {
			return true
		}
		return originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1"
	},
}

// Message types pushed to websocket clients.
const (
	MessageTrade  = "trade"
	MessageStatus = "status"
)

// Message is the websocket frame envelope.
type Message struct {
	Type   string                 `json:"type"`
	Trade  *ptypes.TradeEvent     `json:"trade,omitempty"`
	Status *ptypes.StatusResponse `json:"status,omitempty"`
}

// WebSocketServer streams trade events and periodic status to clients.
type WebSocketServer struct {
	trader   TraderAPI
	interval time.Duration
	logger   *slog.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	sub  event.Subscription
	done chan struct{}
	once sync.Once
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(tr TraderAPI, interval time.Duration, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &WebSocketServer{
		trader:   tr,
		interval: interval,
		logger:   logger,
		clients:  make(map[*websocket.Conn]bool),
		done:     make(chan struct{}),
	}
}

// Handler returns the WebSocket HTTP handler.
func (ws *WebSocketServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		ws.clientsMu.Lock()
		ws.clients[conn] = true
		n := len(ws.clients)
		ws.clientsMu.Unlock()
		ws.logger.Debug("WebSocket client connected", slog.Int("total_clients", n))

		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			n := len(ws.clients)
			ws.clientsMu.Unlock()
			conn.Close()
			ws.logger.Debug("WebSocket client disconnected", slog.Int("total_clients", n))
		}()

		// Reads only detect the close; clients send nothing meaningful.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					ws.logger.Debug("WebSocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

// Start subscribes to trade events and begins broadcasting.
func (ws *WebSocketServer) Start() {
	ch := make(chan ptypes.TradeEvent, tradeBuffer)
	ws.sub = ws.trader.SubscribeTrades(ch)
	go ws.broadcastLoop(ch)
}

// Stop unsubscribes and closes all client connections. Safe to call twice.
func (ws *WebSocketServer) Stop() {
	ws.once.Do(func() {
		close(ws.done)
		if ws.sub != nil {
			ws.sub.Unsubscribe()
		}

		ws.clientsMu.Lock()
		for conn := range ws.clients {
			conn.Close()
		}
		ws.clients = make(map[*websocket.Conn]bool)
		ws.clientsMu.Unlock()
	})
}

// broadcastLoop forwards every trade and pushes status while trading.
// Trade events are always drained so the trading loops never block on
// this subscriber, even with no clients connected.
func (ws *WebSocketServer) broadcastLoop(trades <-chan ptypes.TradeEvent) {
	ticker := time.NewTicker(ws.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ws.done:
			return
		case ev := <-trades:
			ws.broadcast(Message{Type: MessageTrade, Trade: &ev})
		case <-ticker.C:
			if ws.ClientCount() == 0 {
				continue
			}
			st := ws.trader.Status()
			if st.Status == ptypes.StatusRunning {
				ws.broadcast(Message{Type: MessageStatus, Status: &st})
			}
		}
	}
}

func (ws *WebSocketServer) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		ws.logger.Error("Failed to marshal websocket message", slog.String("error", err.Error()))
		return
	}

	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()

	for conn := range ws.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The read loop removes the client.
			ws.logger.Debug("Failed to write to WebSocket", slog.String("error", err.Error()))
		}
	}
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketServer) ClientCount() int {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()
	return len(ws.clients)
}
