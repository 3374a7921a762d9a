package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// Hub maintains the set of active websocket clients and pushes critical
// finding alerts to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps one blocked client from hanging the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.Warnf("websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the connection and registers the client.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	logrus.WithField("clients", total).Info("websocket client connected")

	// Push-only stream; the read loop exists to notice disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			logrus.Info("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Warnf("websocket read error: %v", err)
				}
				return
			}
		}
	}()
}

// Broadcast queues raw data for all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// CriticalAlertFunc adapts the hub to the engine's alert callback: every
// critical finding is pushed to subscribed dashboards as it is scored.
func CriticalAlertFunc(hub *Hub) func(models.Mismatch) {
	return func(mm models.Mismatch) {
		payload, err := json.Marshal(gin.H{
			"type":     "critical_mismatch",
			"mismatch": mm,
		})
		if err != nil {
			return
		}
		hub.Broadcast(payload)
		logrus.WithFields(logrus.Fields{
			"id":       mm.MismatchID,
			"type":     mm.Type,
			"supplier": mm.SupplierGSTIN,
			"itc":      mm.FinancialImpact.ITCAtRisk,
		}).Warn("critical mismatch alert")
	}
}
