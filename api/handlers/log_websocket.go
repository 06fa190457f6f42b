package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/reel-extract-go/pkg/logger"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LogWebSocketHandler streams new log entries to WebSocket clients
type LogWebSocketHandler struct {
	logReader    *logger.LogReader
	logger       *zap.Logger
	backlog      int
	pingInterval time.Duration
}

// NewLogWebSocketHandler creates a new WebSocket handler
func NewLogWebSocketHandler(logReader *logger.LogReader, log *zap.Logger) *LogWebSocketHandler {
	return &LogWebSocketHandler{
		logReader:    logReader,
		logger:       log,
		backlog:      50,
		pingInterval: 30 * time.Second,
	}
}

// HandleWebSocket handles GET /api/v1/logs/stream?category=
func (h *LogWebSocketHandler) HandleWebSocket(c *gin.Context) {
	category := logger.LogCategory(c.DefaultQuery("category", string(logger.CategoryFetch)))
	if !logger.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("category", string(category)),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// recent history first
	entries, err := h.logReader.ReadTodayLogs(category, h.backlog)
	if err == nil {
		for _, entry := range entries {
			if err := writeEntry(conn, entry); err != nil {
				h.logger.Debug("Failed to send initial logs", zap.Error(err))
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	entryChan := make(chan logger.LogEntry, 100)
	go func() {
		if err := h.logReader.TailLogs(ctx, category, entryChan); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
			cancel()
		}
	}()

	// the read loop only exists to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entryChan:
			if err := writeEntry(conn, entry); err != nil {
				h.logger.Debug("Failed to send log entry", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func writeEntry(conn *websocket.Conn, entry logger.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
