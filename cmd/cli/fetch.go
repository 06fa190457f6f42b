package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/yourusername/reel-extract-go/internal/infrastructure"
)

const progressTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

// fetchResult describes a video saved by the fetch command
type fetchResult struct {
	Path     string
	Size     int64
	Strategy string
	Caption  string
}

// fetchVideo asks the server for the video behind input and saves it in outDir
func fetchVideo(client *apiClient, input, outDir string, quiet bool) (*fetchResult, error) {
	req, err := client.newRequest(http.MethodPost, "/api/v1/fetch", map[string]string{"text": input})
	if err != nil {
		return nil, err
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, attachmentName(resp))

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	var body io.Reader = resp.Body
	var bar *pb.ProgressBar
	if !quiet {
		bar = pb.ProgressBarTemplate(progressTemplate).Start64(resp.ContentLength)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", "Downloading: ")
		body = bar.NewProxyReader(resp.Body)
	}

	written, err := io.Copy(file, body)
	if bar != nil {
		bar.Finish()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	caption, _ := url.PathUnescape(resp.Header.Get("X-Media-Caption"))
	return &fetchResult{
		Path:     path,
		Size:     written,
		Strategy: resp.Header.Get("X-Fetch-Strategy"),
		Caption:  caption,
	}, nil
}

// attachmentName reads the file name offered by the server
func attachmentName(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
			return infrastructure.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name))) + ".mp4"
		}
	}
	if id := resp.Header.Get("X-Request-ID"); id != "" {
		return infrastructure.SanitizeFilename(id) + ".mp4"
	}
	return "video.mp4"
}
