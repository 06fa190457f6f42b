package domain

import (
	"regexp"
	"strings"
)

// Platform represents the source platform of a post URL
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"    // TikTok
	PlatformInstagram Platform = "instagram" // Instagram
	PlatformUnknown   Platform = "unknown"   // Anything else
)

var (
	tiktokPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://(www\.)?tiktok\.com/`),
		regexp.MustCompile(`(?i)https?://vm\.tiktok\.com/`),
		regexp.MustCompile(`(?i)https?://vt\.tiktok\.com/`),
	}

	instagramPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://(www\.)?instagram\.com/(p|reel|stories)/`),
		regexp.MustCompile(`(?i)https?://(www\.)?instagr\.am/(p|reel|stories)/`),
	}

	// Shortcodes only exist for posts and reels; stories are addressed by user and id.
	shortcodePattern = regexp.MustCompile(`(?i)(?:instagram\.com|instagr\.am)/(?:p|reel)/([^/?#&]+)`)
	tiktokIDPattern  = regexp.MustCompile(`/video/(\d+)`)
	urlInTextPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// Classify detects the platform from a URL. Unknown URLs are not an error.
func Classify(url string) Platform {
	url = strings.TrimSpace(url)
	for _, p := range tiktokPatterns {
		if p.MatchString(url) {
			return PlatformTikTok
		}
	}
	for _, p := range instagramPatterns {
		if p.MatchString(url) {
			return PlatformInstagram
		}
	}
	return PlatformUnknown
}

// ValidatePlatform checks if a platform is one we can fetch from
func ValidatePlatform(platform Platform) bool {
	return platform == PlatformTikTok || platform == PlatformInstagram
}

// ParsePlatform converts a config key into a Platform
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformTikTok:
		return PlatformTikTok
	case PlatformInstagram:
		return PlatformInstagram
	default:
		return PlatformUnknown
	}
}

// ExtractURL returns the first http(s) URL found in a chat message, or "".
func ExtractURL(text string) string {
	match := urlInTextPattern.FindString(text)
	return strings.TrimRight(match, ".,;:!?)]}")
}

// InstagramShortcode extracts the post shortcode from an Instagram post or reel URL
func InstagramShortcode(url string) string {
	if m := shortcodePattern.FindStringSubmatch(url); len(m) == 2 {
		return m[1]
	}
	return ""
}

// TikTokVideoID extracts the numeric video id from a canonical TikTok URL.
// Short links (vm./vt.) carry no id until redirected.
func TikTokVideoID(url string) string {
	if m := tiktokIDPattern.FindStringSubmatch(url); len(m) == 2 {
		return m[1]
	}
	return ""
}
