package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DownloadRequest is a single fetch request built from an incoming message.
// It is passed by value and never mutated after construction.
type DownloadRequest struct {
	ID        string   `json:"id"`
	SourceURL string   `json:"source_url"`
	Platform  Platform `json:"platform"`
}

// NewDownloadRequest creates a request for the first URL found in text
func NewDownloadRequest(text string) DownloadRequest {
	url := ExtractURL(text)
	if url == "" {
		url = strings.TrimSpace(text)
	}
	return DownloadRequest{
		ID:        uuid.New().String(),
		SourceURL: url,
		Platform:  Classify(url),
	}
}

// IsSupported reports whether the request targets a known platform
func (r DownloadRequest) IsSupported() bool {
	return ValidatePlatform(r.Platform)
}

// Metadata is the minimal post information shown alongside a video
type Metadata struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Uploader string `json:"uploader,omitempty"`
	Likes    int64  `json:"likes,omitempty"`
	HasLikes bool   `json:"has_likes,omitempty"`
}

// Caption builds the text sent with a delivered video
func (m Metadata) Caption(platform Platform) string {
	switch platform {
	case PlatformTikTok:
		author := m.Uploader
		if author == "" {
			author = "Unknown"
		}
		return fmt.Sprintf("TikTok Video\nAuthor: %s", author)
	case PlatformInstagram:
		if m.HasLikes {
			return fmt.Sprintf("Instagram Video\nLikes: %d", m.Likes)
		}
		return "Instagram Video"
	default:
		return ""
	}
}

// Media is what a strategy reports after writing a file to its destination
type Media struct {
	Path      string
	SizeBytes int64
	Metadata  Metadata
}

// Artifact is a downloaded video lent to the caller of a fetch.
// The file is deleted once the caller's consume function returns.
type Artifact struct {
	Request   DownloadRequest
	Path      string
	SizeBytes int64
	Metadata  Metadata
	Strategy  string
}

// Caption returns the display caption for the artifact
func (a *Artifact) Caption() string {
	return a.Metadata.Caption(a.Request.Platform)
}

// FileName returns the name offered to clients receiving the video
func (a *Artifact) FileName() string {
	id := a.Metadata.ID
	if id == "" {
		id = a.Request.ID
	}
	return fmt.Sprintf("%s_%s.mp4", a.Request.Platform, id)
}
