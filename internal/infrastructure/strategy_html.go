package infrastructure

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

// domSelectors are tried in order when no configured pattern matches
var domSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:video:secure_url"]`, "content"},
	{`meta[property="og:video:url"]`, "content"},
	{`meta[property="og:video"]`, "content"},
	{`video[src]`, "src"},
	{`video source[src]`, "src"},
}

// HTMLStrategy scrapes the post page for an embedded video URL
type HTMLStrategy struct {
	client   *HTTPClient
	patterns map[domain.Platform][]*regexp.Regexp
	log      *zap.Logger
}

// NewHTMLStrategy compiles the configured per-platform patterns
func NewHTMLStrategy(client *HTTPClient, tiktok *domain.TikTokConfig, instagram *domain.InstagramConfig, log *zap.Logger) (*HTMLStrategy, error) {
	patterns := make(map[domain.Platform][]*regexp.Regexp)
	for platform, sources := range map[domain.Platform][]string{
		domain.PlatformTikTok:    tiktok.HTMLPatterns,
		domain.PlatformInstagram: instagram.HTMLPatterns,
	} {
		compiled, err := compilePatterns(sources)
		if err != nil {
			return nil, fmt.Errorf("invalid %s html pattern: %w", platform, err)
		}
		patterns[platform] = compiled
	}

	return &HTMLStrategy{client: client, patterns: patterns, log: nopIfNil(log)}, nil
}

func compilePatterns(sources []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, err
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q has no capture group", src)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Name returns the strategy name
func (s *HTMLStrategy) Name() string {
	return domain.StrategyHTML
}

// Attempt fetches the page, locates a video URL and downloads it
func (s *HTMLStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	page, err := s.client.GetPage(ctx, req.SourceURL, nil)
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	videoURL := s.FindVideoURL(req.Platform, page)
	if videoURL == "" {
		return nil, domain.ExtractorErrorf(s.Name(), "no video url found in page")
	}

	s.log.Debug("Found video in page",
		zap.String("request_id", req.ID),
		zap.String("platform", string(req.Platform)))

	headers := map[string]string{"Referer": req.SourceURL}
	if _, err := s.client.DownloadTo(ctx, videoURL, dest, headers); err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	media, err := mediaAt(dest, domain.Metadata{ID: postID(req)})
	if err != nil {
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	return media, nil
}

// FindVideoURL applies the platform's patterns in order, then DOM lookups.
// The first absolute URL found wins.
func (s *HTMLStrategy) FindVideoURL(platform domain.Platform, page string) string {
	for _, re := range s.patterns[platform] {
		m := re.FindStringSubmatch(page)
		if len(m) < 2 {
			continue
		}
		if candidate := unescapeMediaURL(m[1]); isHTTPURL(candidate) {
			return candidate
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	for _, sel := range domSelectors {
		var found string
		doc.Find(sel.selector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			value, ok := node.Attr(sel.attr)
			if !ok {
				return true
			}
			if candidate := unescapeMediaURL(value); isHTTPURL(candidate) {
				found = candidate
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
