package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/reel-extract-go/internal/domain"
)

const fakeVideo = "\x00\x00\x00\x18ftypmp42fake-video-payload"

func destPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tiktok_req_test.mp4")
}

func tiktokRequest() domain.DownloadRequest {
	return domain.DownloadRequest{
		ID:        "req-1",
		SourceURL: "https://www.tiktok.com/@alice/video/7237370304337628442",
		Platform:  domain.PlatformTikTok,
	}
}

func instagramRequest() domain.DownloadRequest {
	return domain.DownloadRequest{
		ID:        "req-2",
		SourceURL: "https://www.instagram.com/reel/Cabc123/",
		Platform:  domain.PlatformInstagram,
	}
}

func TestUnescapeMediaURL(t *testing.T) {
	assert.Equal(t, "https://v16.tiktokcdn.com/a/b.mp4?x=1&y=2",
		unescapeMediaURL(`https:\u002F\u002Fv16.tiktokcdn.com\u002Fa\u002Fb.mp4?x=1\u0026y=2`))
	assert.Equal(t, "https://cdn.example/v.mp4?a=1&b=2",
		unescapeMediaURL(`https:\/\/cdn.example\/v.mp4?a=1&amp;b=2`))
}

func TestTikTokNativeStrategy(t *testing.T) {
	var wmRequested atomic.Bool
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.tiktok.com/@alice/video/7237370304337628442", r.URL.Query().Get("url"))
		fmt.Fprintf(w, `{"code":0,"msg":"success","data":{"id":"7237370304337628442","title":"t",
			"play":"/video/play.mp4","hdplay":"%s/video/hd.mp4","wmplay":"%s/video/wm.mp4",
			"digg_count":1500,"author":{"unique_id":"alice","nickname":"Alice"}}}`, serverURL, serverURL)
	})
	mux.HandleFunc("/video/hd.mp4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.tiktok.com/", r.Header.Get("Referer"))
		w.Write([]byte(fakeVideo))
	})
	mux.HandleFunc("/video/wm.mp4", func(w http.ResponseWriter, r *http.Request) {
		wmRequested.Store(true)
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	s := NewTikTokNativeStrategy(newTestClient(t), &domain.TikTokConfig{ResolverURL: server.URL + "/api/"}, nil)
	dest := destPath(t)

	media, err := s.Attempt(context.Background(), tiktokRequest(), dest)
	require.NoError(t, err)
	assert.Equal(t, dest, media.Path)
	assert.Equal(t, int64(len(fakeVideo)), media.SizeBytes)
	assert.Equal(t, "alice", media.Metadata.Uploader)
	assert.Equal(t, int64(1500), media.Metadata.Likes)
	assert.Equal(t, "7237370304337628442", media.Metadata.ID)
	assert.False(t, wmRequested.Load(), "watermarked stream must never be fetched")
}

func TestTikTokNativeStrategy_RelativePlayURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"data":{"id":"1","play":"/video/play.mp4","wmplay":"/video/wm.mp4","author":{}}}`))
	})
	mux.HandleFunc("/video/play.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewTikTokNativeStrategy(newTestClient(t), &domain.TikTokConfig{ResolverURL: server.URL + "/api/"}, nil)
	media, err := s.Attempt(context.Background(), tiktokRequest(), destPath(t))
	require.NoError(t, err)
	assert.Equal(t, "1", media.Metadata.ID)
}

func TestTikTokNativeStrategy_OnlyWatermarked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"data":{"id":"1","wmplay":"https://cdn/wm.mp4","author":{}}}`))
	}))
	defer server.Close()

	s := NewTikTokNativeStrategy(newTestClient(t), &domain.TikTokConfig{ResolverURL: server.URL}, nil)
	dest := destPath(t)
	_, err := s.Attempt(context.Background(), tiktokRequest(), dest)

	assert.True(t, domain.IsReason(err, domain.ReasonExtractorError))
	assert.NoFileExists(t, dest)
}

func TestTikTokNativeStrategy_ResolverError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":-1,"msg":"Url parsing is failed!"}`))
	}))
	defer server.Close()

	s := NewTikTokNativeStrategy(newTestClient(t), &domain.TikTokConfig{ResolverURL: server.URL}, nil)
	_, err := s.Attempt(context.Background(), tiktokRequest(), destPath(t))
	assert.ErrorContains(t, err, "Url parsing is failed!")
}

func TestInstagramNativeStrategy_Items(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/p/Cabc123/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("__a"))
		assert.Equal(t, "936619743392459", r.Header.Get("X-IG-App-ID"))
		assert.Equal(t, "sessionid=secret", r.Header.Get("Cookie"))
		fmt.Fprintf(w, `{"items":[{"code":"Cabc123","media_type":2,"like_count":42,
			"video_versions":[{"url":"%s/v.mp4"}],"user":{"username":"bob"},"caption":{"text":"hi"}}]}`, serverURL)
	})
	mux.HandleFunc("/v.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	s := NewInstagramNativeStrategy(newTestClient(t), &domain.InstagramConfig{AppID: "936619743392459", SessionID: "secret"}, nil)
	s.baseURL = server.URL

	media, err := s.Attempt(context.Background(), instagramRequest(), destPath(t))
	require.NoError(t, err)
	assert.Equal(t, "Cabc123", media.Metadata.ID)
	assert.Equal(t, "bob", media.Metadata.Uploader)
	assert.True(t, media.Metadata.HasLikes)
	assert.Equal(t, int64(42), media.Metadata.Likes)
	assert.Equal(t, "Instagram Video\nLikes: 42", media.Metadata.Caption(domain.PlatformInstagram))
}

func TestInstagramNativeStrategy_GraphQL(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/p/Cabc123/", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Cookie"))
		fmt.Fprintf(w, `{"graphql":{"shortcode_media":{"shortcode":"Cabc123","is_video":true,
			"video_url":"%s/v.mp4","edge_media_preview_like":{"count":9},"owner":{"username":"carol"}}}}`, serverURL)
	})
	mux.HandleFunc("/v.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	s := NewInstagramNativeStrategy(newTestClient(t), &domain.InstagramConfig{}, nil)
	s.baseURL = server.URL

	media, err := s.Attempt(context.Background(), instagramRequest(), destPath(t))
	require.NoError(t, err)
	assert.Equal(t, "carol", media.Metadata.Uploader)
	assert.Equal(t, int64(9), media.Metadata.Likes)
}

func TestInstagramNativeStrategy_NotAVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"code":"Cabc123","media_type":1}]}`))
	}))
	defer server.Close()

	s := NewInstagramNativeStrategy(newTestClient(t), &domain.InstagramConfig{}, nil)
	s.baseURL = server.URL
	dest := destPath(t)

	_, err := s.Attempt(context.Background(), instagramRequest(), dest)
	assert.ErrorContains(t, err, "not a video")
	assert.NoFileExists(t, dest)
}

func TestInstagramNativeStrategy_NoShortcode(t *testing.T) {
	s := NewInstagramNativeStrategy(newTestClient(t), &domain.InstagramConfig{}, nil)
	req := instagramRequest()
	req.SourceURL = "https://www.instagram.com/stories/someone/3123/"

	_, err := s.Attempt(context.Background(), req, destPath(t))
	assert.True(t, domain.IsReason(err, domain.ReasonExtractorError))
}

func newTestHTMLStrategy(t *testing.T) *HTMLStrategy {
	t.Helper()
	cfg := domain.DefaultConfig()
	s, err := NewHTMLStrategy(newTestClient(t), &cfg.TikTok, &cfg.Instagram, nil)
	require.NoError(t, err)
	return s
}

func TestNewHTMLStrategy_InvalidPattern(t *testing.T) {
	_, err := NewHTMLStrategy(newTestClient(t), &domain.TikTokConfig{HTMLPatterns: []string{"("}}, &domain.InstagramConfig{}, nil)
	assert.Error(t, err)

	_, err = NewHTMLStrategy(newTestClient(t), &domain.TikTokConfig{HTMLPatterns: []string{"no-group"}}, &domain.InstagramConfig{}, nil)
	assert.ErrorContains(t, err, "capture group")
}

func TestHTMLStrategy_FindVideoURL(t *testing.T) {
	s := newTestHTMLStrategy(t)

	tests := []struct {
		name     string
		platform domain.Platform
		page     string
		expected string
	}{
		{
			name:     "downloadAddr wins over playAddr",
			platform: domain.PlatformTikTok,
			page:     `{"playAddr":"https://cdn/play.mp4","downloadAddr":"https://cdn/dl.mp4"}`,
			expected: "https://cdn/dl.mp4",
		},
		{
			name:     "playAddr fallback",
			platform: domain.PlatformTikTok,
			page:     `{"playAddr":"https:\/\/cdn\/play.mp4"}`,
			expected: "https://cdn/play.mp4",
		},
		{
			name:     "instagram video_url",
			platform: domain.PlatformInstagram,
			page:     `"video_url":"https:\/\/scontent.cdninstagram.com\/v.mp4?a=1&b=2"`,
			expected: "https://scontent.cdninstagram.com/v.mp4?a=1&b=2",
		},
		{
			name:     "og video via dom",
			platform: domain.PlatformTikTok,
			page:     `<html><head><meta content="https://cdn/og.mp4" property="og:video"></head></html>`,
			expected: "https://cdn/og.mp4",
		},
		{
			name:     "video source via dom",
			platform: domain.PlatformInstagram,
			page:     `<html><body><video><source src="https://cdn/src.mp4?x=1&amp;y=2"></video></body></html>`,
			expected: "https://cdn/src.mp4?x=1&y=2",
		},
		{
			name:     "relative urls ignored",
			platform: domain.PlatformTikTok,
			page:     `<video src="/blob/relative.mp4"></video>`,
			expected: "",
		},
		{
			name:     "nothing",
			platform: domain.PlatformInstagram,
			page:     `<html><body>login required</body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.FindVideoURL(tt.platform, tt.page))
		})
	}
}

func TestHTMLStrategy_Attempt(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/@alice/video/7237370304337628442", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<script>{"downloadAddr":"%s/v.mp4"}</script>`, serverURL)
	})
	mux.HandleFunc("/v.mp4", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Referer"), "/@alice/video/")
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	req := tiktokRequest()
	req.SourceURL = server.URL + "/@alice/video/7237370304337628442"

	media, err := newTestHTMLStrategy(t).Attempt(context.Background(), req, destPath(t))
	require.NoError(t, err)
	assert.Equal(t, "7237370304337628442", media.Metadata.ID)
	assert.Equal(t, int64(len(fakeVideo)), media.SizeBytes)
}

func TestHTMLStrategy_NoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	req := tiktokRequest()
	req.SourceURL = server.URL
	dest := destPath(t)

	_, err := newTestHTMLStrategy(t).Attempt(context.Background(), req, dest)
	assert.ErrorContains(t, err, "no video url")
	assert.NoFileExists(t, dest)
}

func TestParseConvertResponse(t *testing.T) {
	assert.Equal(t, "https://cdn/a.mp4", parseConvertResponse([]byte(`{"url":"https://cdn/a.mp4"}`)))
	assert.Equal(t, "https://cdn/b.mp4", parseConvertResponse([]byte(`{"download_url":"https://cdn/b.mp4"}`)))
	assert.Equal(t, "https://cdn/c.mp4?sig=1", parseConvertResponse([]byte(`<a href="https://cdn/c.mp4?sig=1">download</a>`)))
	assert.Equal(t, "", parseConvertResponse([]byte(`{"error":"unsupported"}`)))
	assert.Equal(t, "", parseConvertResponse([]byte(`{"url":""}`)))
}

func TestConvertAPIStrategy_Attempt(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://www.instagram.com/reel/Cabc123/", r.PostForm.Get("url"))
		assert.Equal(t, "k", r.PostForm.Get("api_key"))
		json.NewEncoder(w).Encode(map[string]string{"url": serverURL + "/v.mp4"})
	})
	mux.HandleFunc("/v.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakeVideo))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	s := NewConvertAPIStrategy(newTestClient(t), &domain.ConvertAPIConfig{Endpoint: server.URL + "/api/convert", APIKey: "k"}, nil)
	media, err := s.Attempt(context.Background(), instagramRequest(), destPath(t))
	require.NoError(t, err)
	assert.Equal(t, "Cabc123", media.Metadata.ID)
}

func TestConvertAPIStrategy_NoEndpoint(t *testing.T) {
	s := NewConvertAPIStrategy(newTestClient(t), &domain.ConvertAPIConfig{}, nil)
	_, err := s.Attempt(context.Background(), instagramRequest(), destPath(t))
	assert.True(t, domain.IsReason(err, domain.ReasonExtractorError))
}

func TestParseYTDLPOutput(t *testing.T) {
	out := "[download] 100%\n" +
		`{"id":"7237370304337628442","title":"clip","uploader":"alice","like_count":1200,"_filename":"/tmp/x.mp4"}` + "\n"
	info := parseYTDLPOutput(out)

	assert.Equal(t, "7237370304337628442", info.ID)
	assert.Equal(t, "alice", info.Uploader)
	require.NotNil(t, info.LikeCount)
	assert.Equal(t, float64(1200), *info.LikeCount)
	assert.Equal(t, "/tmp/x.mp4", info.Filename)

	empty := parseYTDLPOutput("ERROR: private video")
	assert.Empty(t, empty.ID)
	assert.Nil(t, empty.LikeCount)
}

func TestAdoptOutput(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "instagram_r_ytdlp.mp4")

	remuxed := filepath.Join(dir, "instagram_r_ytdlp.webm")
	require.NoError(t, os.WriteFile(remuxed, []byte(fakeVideo), 0644))
	require.NoError(t, adoptOutput(dest, ""))
	assert.FileExists(t, dest)
	assert.NoFileExists(t, remuxed)

	// already in place
	assert.NoError(t, adoptOutput(dest, dest))

	missing := filepath.Join(dir, "tiktok_r_ytdlp.mp4")
	assert.Error(t, adoptOutput(missing, ""))
}

func TestYTDLPStrategy_MissingBinary(t *testing.T) {
	s := NewYTDLPStrategy(
		&domain.YTDLPConfig{Binary: filepath.Join(t.TempDir(), "no-such-yt-dlp")},
		&domain.HTTPConfig{}, "", nil)
	dest := destPath(t)

	_, err := s.Attempt(context.Background(), tiktokRequest(), dest)
	assert.True(t, domain.IsReason(err, domain.ReasonExtractorError))
	assert.NoFileExists(t, dest)
}

func TestYTDLPStrategy_FakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "yt-dlp")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o|--output) out="$2"; shift ;;
  esac
  shift
done
printf 'fake-video' > "$out"
echo '{"id":"42","uploader":"alice","like_count":7}'
`), 0755))

	logsDir := filepath.Join(dir, "logs")
	s := NewYTDLPStrategy(&domain.YTDLPConfig{Binary: script}, &domain.HTTPConfig{}, logsDir, nil)
	dest := filepath.Join(dir, "tiktok_req_ytdlp.mp4")

	media, err := s.Attempt(context.Background(), tiktokRequest(), dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("fake-video")), media.SizeBytes)
	assert.Equal(t, "42", media.Metadata.ID)
	assert.Equal(t, "alice", media.Metadata.Uploader)
	assert.Equal(t, int64(7), media.Metadata.Likes)

	logs, err := filepath.Glob(filepath.Join(logsDir, "ytdlp-*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
