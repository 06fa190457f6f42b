package infrastructure

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

const instagramBaseURL = "https://www.instagram.com"

// instagramPost covers both the items[] and graphql response shapes of the web JSON endpoint
type instagramPost struct {
	Items []struct {
		Code          string `json:"code"`
		MediaType     int    `json:"media_type"`
		LikeCount     *int64 `json:"like_count"`
		VideoVersions []struct {
			URL string `json:"url"`
		} `json:"video_versions"`
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Caption *struct {
			Text string `json:"text"`
		} `json:"caption"`
	} `json:"items"`
	GraphQL *struct {
		ShortcodeMedia *struct {
			Shortcode            string `json:"shortcode"`
			IsVideo              bool   `json:"is_video"`
			VideoURL             string `json:"video_url"`
			EdgeMediaPreviewLike struct {
				Count int64 `json:"count"`
			} `json:"edge_media_preview_like"`
			Owner struct {
				Username string `json:"username"`
			} `json:"owner"`
		} `json:"shortcode_media"`
	} `json:"graphql"`
}

// resolve returns the video URL and metadata, or an error for non-video posts
func (p *instagramPost) resolve() (string, domain.Metadata, error) {
	if len(p.Items) > 0 {
		item := p.Items[0]
		if len(item.VideoVersions) == 0 || item.VideoVersions[0].URL == "" {
			return "", domain.Metadata{}, fmt.Errorf("post is not a video (media_type=%d)", item.MediaType)
		}
		meta := domain.Metadata{ID: item.Code, Uploader: item.User.Username}
		if item.Caption != nil {
			meta.Title = item.Caption.Text
		}
		if item.LikeCount != nil {
			meta.Likes = *item.LikeCount
			meta.HasLikes = true
		}
		return item.VideoVersions[0].URL, meta, nil
	}

	if p.GraphQL != nil && p.GraphQL.ShortcodeMedia != nil {
		media := p.GraphQL.ShortcodeMedia
		if !media.IsVideo || media.VideoURL == "" {
			return "", domain.Metadata{}, fmt.Errorf("post is not a video")
		}
		return media.VideoURL, domain.Metadata{
			ID:       media.Shortcode,
			Uploader: media.Owner.Username,
			Likes:    media.EdgeMediaPreviewLike.Count,
			HasLikes: true,
		}, nil
	}

	return "", domain.Metadata{}, fmt.Errorf("unrecognized response shape")
}

// InstagramNativeStrategy resolves a post shortcode through Instagram's web JSON endpoint
type InstagramNativeStrategy struct {
	client    *HTTPClient
	baseURL   string
	appID     string
	sessionID string
	log       *zap.Logger
}

// NewInstagramNativeStrategy creates the native Instagram strategy
func NewInstagramNativeStrategy(client *HTTPClient, config *domain.InstagramConfig, log *zap.Logger) *InstagramNativeStrategy {
	return &InstagramNativeStrategy{
		client:    client,
		baseURL:   instagramBaseURL,
		appID:     config.AppID,
		sessionID: config.SessionID,
		log:       nopIfNil(log),
	}
}

// Name returns the strategy name
func (s *InstagramNativeStrategy) Name() string {
	return domain.StrategyInstagramNative
}

// Attempt resolves and downloads the video
func (s *InstagramNativeStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	shortcode := domain.InstagramShortcode(req.SourceURL)
	if shortcode == "" {
		return nil, domain.ExtractorErrorf(s.Name(), "no post shortcode in url")
	}

	apiURL := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", s.baseURL, url.PathEscape(shortcode))
	headers := map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          refererFor(domain.PlatformInstagram),
	}
	if s.appID != "" {
		headers["X-IG-App-ID"] = s.appID
	}
	if s.sessionID != "" {
		headers["Cookie"] = "sessionid=" + s.sessionID
	}

	var post instagramPost
	if err := s.client.GetJSON(ctx, apiURL, headers, &post); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	videoURL, meta, err := post.resolve()
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	if meta.ID == "" {
		meta.ID = shortcode
	}

	s.log.Debug("Resolved Instagram stream",
		zap.String("request_id", req.ID),
		zap.String("shortcode", shortcode),
		zap.Bool("authenticated", s.sessionID != ""))

	if _, err := s.client.DownloadTo(ctx, videoURL, dest, nil); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	media, err := mediaAt(dest, meta)
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	return media, nil
}
