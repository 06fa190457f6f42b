package infrastructure

import (
	"fmt"
	"os"
	"strings"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

var jsonEscapes = strings.NewReplacer(
	`\u002F`, "/",
	`\u002f`, "/",
	`\u0026`, "&",
	`\/`, "/",
	"&amp;", "&",
)

// unescapeMediaURL undoes the JSON and HTML escaping found in scraped page sources
func unescapeMediaURL(s string) string {
	return strings.TrimSpace(jsonEscapes.Replace(s))
}

// isHTTPURL reports whether s looks like an absolute http(s) URL
func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// mediaAt stats dest and builds the Media a strategy reports on success
func mediaAt(dest string, meta domain.Metadata) (*domain.Media, error) {
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("downloaded file missing: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(dest)
		return nil, fmt.Errorf("downloaded file is empty")
	}
	return &domain.Media{Path: dest, SizeBytes: info.Size(), Metadata: meta}, nil
}

// postID returns the platform identifier of a post URL, if it carries one
func postID(req domain.DownloadRequest) string {
	switch req.Platform {
	case domain.PlatformTikTok:
		return domain.TikTokVideoID(req.SourceURL)
	case domain.PlatformInstagram:
		return domain.InstagramShortcode(req.SourceURL)
	}
	return ""
}

// refererFor returns the origin a platform's CDN expects in the Referer header
func refererFor(platform domain.Platform) string {
	switch platform {
	case domain.PlatformTikTok:
		return "https://www.tiktok.com/"
	case domain.PlatformInstagram:
		return "https://www.instagram.com/"
	}
	return ""
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
