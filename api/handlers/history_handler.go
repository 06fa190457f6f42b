package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves the fetch history. repo is nil when history is disabled.
type HistoryHandler struct {
	repo   domain.FetchRepository
	logger *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(repo domain.FetchRepository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo:   repo,
		logger: logger,
	}
}

func (h *HistoryHandler) enabled(c *gin.Context) bool {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fetch history is disabled"})
		return false
	}
	return true
}

// ListHistory handles GET /api/v1/history
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	if !h.enabled(c) {
		return
	}

	filters := make(map[string]interface{})
	for _, key := range []string{"platform", "status", "strategy", "reason"} {
		if value := c.Query(key); value != "" {
			filters[key] = value
		}
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.repo.FindRecent(filters, limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/history/stats
func (h *HistoryHandler) GetStats(c *gin.Context) {
	if !h.enabled(c) {
		return
	}

	stats, err := h.repo.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecord handles GET /api/v1/history/:id
func (h *HistoryHandler) GetRecord(c *gin.Context) {
	if !h.enabled(c) {
		return
	}

	record, err := h.repo.FindByID(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to get history record", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}
