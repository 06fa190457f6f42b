package infrastructure

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

// tikwmResponse is the subset of the TikWM resolver response we use
type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Play      string `json:"play"`
		HDPlay    string `json:"hdplay"`
		WMPlay    string `json:"wmplay"`
		DiggCount int64  `json:"digg_count"`
		Author    struct {
			UniqueID string `json:"unique_id"`
			Nickname string `json:"nickname"`
		} `json:"author"`
	} `json:"data"`
}

// TikTokNativeStrategy resolves the watermark-free play URL through a TikWM-compatible resolver
type TikTokNativeStrategy struct {
	client      *HTTPClient
	resolverURL string
	log         *zap.Logger
}

// NewTikTokNativeStrategy creates the native TikTok strategy
func NewTikTokNativeStrategy(client *HTTPClient, config *domain.TikTokConfig, log *zap.Logger) *TikTokNativeStrategy {
	return &TikTokNativeStrategy{
		client:      client,
		resolverURL: config.ResolverURL,
		log:         nopIfNil(log),
	}
}

// Name returns the strategy name
func (s *TikTokNativeStrategy) Name() string {
	return domain.StrategyTikTokNative
}

// Attempt resolves and downloads the video
func (s *TikTokNativeStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	if req.Platform != domain.PlatformTikTok {
		return nil, domain.ExtractorErrorf(s.Name(), "not a TikTok URL")
	}

	endpoint, err := url.Parse(s.resolverURL)
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), fmt.Errorf("invalid resolver URL: %w", err))
	}
	q := endpoint.Query()
	q.Set("url", req.SourceURL)
	q.Set("hd", "1")
	endpoint.RawQuery = q.Encode()

	var resp tikwmResponse
	if err := s.client.GetJSON(ctx, endpoint.String(), nil, &resp); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	if resp.Code != 0 || resp.Data == nil {
		return nil, domain.ExtractorErrorf(s.Name(), "resolver rejected url: code=%d msg=%s", resp.Code, resp.Msg)
	}

	// wmplay carries the watermark and is never used
	playURL := resp.Data.HDPlay
	if playURL == "" {
		playURL = resp.Data.Play
	}
	if playURL == "" {
		return nil, domain.ExtractorErrorf(s.Name(), "resolver returned no watermark-free stream")
	}
	playURL = s.absolute(playURL)

	s.log.Debug("Resolved TikTok stream",
		zap.String("request_id", req.ID),
		zap.String("video_id", resp.Data.ID))

	headers := map[string]string{"Referer": refererFor(domain.PlatformTikTok)}
	if _, err := s.client.DownloadTo(ctx, playURL, dest, headers); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	uploader := resp.Data.Author.UniqueID
	if uploader == "" {
		uploader = resp.Data.Author.Nickname
	}
	media, err := mediaAt(dest, domain.Metadata{
		ID:       resp.Data.ID,
		Title:    resp.Data.Title,
		Uploader: uploader,
		Likes:    resp.Data.DiggCount,
		HasLikes: true,
	})
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	return media, nil
}

// absolute resolves relative play paths against the resolver host
func (s *TikTokNativeStrategy) absolute(playURL string) string {
	if isHTTPURL(playURL) {
		return playURL
	}
	base, err := url.Parse(s.resolverURL)
	if err != nil {
		return playURL
	}
	ref, err := url.Parse(strings.TrimSpace(playURL))
	if err != nil {
		return playURL
	}
	return base.ResolveReference(ref).String()
}
