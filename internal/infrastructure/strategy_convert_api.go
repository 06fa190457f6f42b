package infrastructure

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

var bareMP4Pattern = regexp.MustCompile(`https?://[^\s"'<>]+?\.mp4[^\s"'<>]*`)

// ConvertAPIStrategy asks a third-party conversion service for a direct video link
type ConvertAPIStrategy struct {
	client   *HTTPClient
	endpoint string
	apiKey   string
	log      *zap.Logger
}

// NewConvertAPIStrategy creates the conversion API strategy
func NewConvertAPIStrategy(client *HTTPClient, config *domain.ConvertAPIConfig, log *zap.Logger) *ConvertAPIStrategy {
	return &ConvertAPIStrategy{
		client:   client,
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		log:      nopIfNil(log),
	}
}

// Name returns the strategy name
func (s *ConvertAPIStrategy) Name() string {
	return domain.StrategyConvertAPI
}

// Attempt posts the source URL to the service and downloads the returned link
func (s *ConvertAPIStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	if s.endpoint == "" {
		return nil, domain.ExtractorErrorf(s.Name(), "no conversion endpoint configured")
	}

	form := url.Values{}
	form.Set("url", req.SourceURL)
	if s.apiKey != "" {
		form.Set("api_key", s.apiKey)
	}

	body, err := s.client.PostForm(ctx, s.endpoint, form, nil)
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	videoURL := parseConvertResponse(body)
	if videoURL == "" {
		return nil, domain.ExtractorErrorf(s.Name(), "service returned no download link")
	}

	s.log.Debug("Conversion service returned link", zap.String("request_id", req.ID))

	if _, err := s.client.DownloadTo(ctx, videoURL, dest, nil); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	media, err := mediaAt(dest, domain.Metadata{ID: postID(req)})
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	return media, nil
}

// parseConvertResponse accepts a JSON object with url or download_url,
// otherwise the first .mp4 link anywhere in the body
func parseConvertResponse(body []byte) string {
	var payload struct {
		URL         string `json:"url"`
		DownloadURL string `json:"download_url"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.URL, payload.DownloadURL} {
			if candidate = unescapeMediaURL(candidate); isHTTPURL(candidate) {
				return candidate
			}
		}
	}

	if m := bareMP4Pattern.Find(body); m != nil {
		return unescapeMediaURL(string(m))
	}
	return ""
}
