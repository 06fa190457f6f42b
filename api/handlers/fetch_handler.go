package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is returned when the caller went away mid-fetch
const StatusClientClosedRequest = 499

// Fetcher runs fetches on behalf of the HTTP API
type Fetcher interface {
	Fetch(ctx context.Context, req domain.DownloadRequest, consume domain.Consumer) error
	ChainNames(platform domain.Platform) []string
	Ready() error
}

// FetchHandler handles fetch and classify requests
type FetchHandler struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewFetchHandler creates a new fetch handler
func NewFetchHandler(fetcher Fetcher, logger *zap.Logger) *FetchHandler {
	return &FetchHandler{
		fetcher: fetcher,
		logger:  logger,
	}
}

// FetchRequest is the body of POST /api/v1/fetch. Text may be a whole chat
// message; the first URL in it is used.
type FetchRequest struct {
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

// ErrorResponse is returned for failed fetches
type ErrorResponse struct {
	Reason  domain.FailureReason `json:"reason,omitempty"`
	Error   string               `json:"error"`
	Message string               `json:"message,omitempty"`
}

// Fetch handles POST /api/v1/fetch and streams the video back
func (h *FetchHandler) Fetch(c *gin.Context) {
	var body FetchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	input := strings.TrimSpace(body.URL)
	if input == "" {
		input = strings.TrimSpace(body.Text)
	}
	if input == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url or text is required"})
		return
	}

	req := domain.NewDownloadRequest(input)
	err := h.fetcher.Fetch(c.Request.Context(), req, func(artifact *domain.Artifact) error {
		writeArtifactHeaders(c, artifact)
		c.FileAttachment(artifact.Path, artifact.FileName())
		return nil
	})
	if err == nil {
		return
	}

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		h.logger.Error("Failed to deliver video", zap.String("request_id", req.ID), zap.Error(err))
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	h.logger.Info("Fetch failed",
		zap.String("request_id", req.ID),
		zap.String("url", req.SourceURL),
		zap.String("reason", string(fetchErr.Reason)))
	c.JSON(statusForReason(fetchErr.Reason), ErrorResponse{
		Reason:  fetchErr.Reason,
		Error:   fetchErr.Error(),
		Message: fetchErr.UserMessage(),
	})
}

// writeArtifactHeaders exposes strategy and metadata alongside the video.
// The caption is path-escaped since it spans several lines.
func writeArtifactHeaders(c *gin.Context, artifact *domain.Artifact) {
	c.Header("X-Request-ID", artifact.Request.ID)
	c.Header("X-Fetch-Strategy", artifact.Strategy)
	c.Header("X-Media-Platform", string(artifact.Request.Platform))
	if artifact.Metadata.Uploader != "" {
		c.Header("X-Media-Uploader", url.PathEscape(artifact.Metadata.Uploader))
	}
	if artifact.Metadata.HasLikes {
		c.Header("X-Media-Likes", strconv.FormatInt(artifact.Metadata.Likes, 10))
	}
	c.Header("X-Media-Caption", url.PathEscape(artifact.Caption()))
	c.Header("Content-Type", "video/mp4")
}

// statusForReason maps a failure reason to its HTTP status
func statusForReason(reason domain.FailureReason) int {
	switch reason {
	case domain.ReasonUnsupportedPlatform:
		return http.StatusBadRequest
	case domain.ReasonTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.ReasonCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

// ClassifyResponse describes how a URL would be handled
type ClassifyResponse struct {
	URL       string          `json:"url"`
	Platform  domain.Platform `json:"platform"`
	Supported bool            `json:"supported"`
	Chain     []string        `json:"chain,omitempty"`
}

// Classify handles GET /api/v1/classify
func (h *FetchHandler) Classify(c *gin.Context) {
	input := c.Query("url")
	if input == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameter 'url' is required"})
		return
	}

	req := domain.NewDownloadRequest(input)
	c.JSON(http.StatusOK, ClassifyResponse{
		URL:       req.SourceURL,
		Platform:  req.Platform,
		Supported: req.IsSupported(),
		Chain:     h.fetcher.ChainNames(req.Platform),
	})
}
