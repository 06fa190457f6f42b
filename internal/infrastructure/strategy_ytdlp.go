package infrastructure

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"go.uber.org/zap"
)

// ytdlpInfo is the subset of yt-dlp's JSON output we read
type ytdlpInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Uploader  string   `json:"uploader"`
	Channel   string   `json:"channel"`
	LikeCount *float64 `json:"like_count"`
	Filename  string   `json:"_filename"`
}

// YTDLPStrategy downloads through the yt-dlp generalized extractor
type YTDLPStrategy struct {
	config    *domain.YTDLPConfig
	proxyURL  string
	userAgent string
	logsDir   string
	log       *zap.Logger

	logMu sync.Mutex
}

// NewYTDLPStrategy creates the yt-dlp strategy. Command output is appended to
// a daily ytdlp-YYYYMMDD.log in logsDir when logsDir is set.
func NewYTDLPStrategy(config *domain.YTDLPConfig, httpConfig *domain.HTTPConfig, logsDir string, log *zap.Logger) *YTDLPStrategy {
	userAgent := httpConfig.UserAgent
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}
	return &YTDLPStrategy{
		config:    config,
		proxyURL:  httpConfig.ProxyURL,
		userAgent: userAgent,
		logsDir:   logsDir,
		log:       nopIfNil(log),
	}
}

// Name returns the strategy name
func (s *YTDLPStrategy) Name() string {
	return domain.StrategyYTDLP
}

// command builds the yt-dlp invocation for one request
func (s *YTDLPStrategy) command(req domain.DownloadRequest, dest string) *ytdlp.Command {
	format := s.config.Format
	if format == "" {
		format = "best"
	}

	dl := ytdlp.New().
		Format(format).
		NoPlaylist().
		PrintJSON().
		Output(dest).
		AddHeaders("User-Agent:" + s.userAgent)

	if referer := refererFor(req.Platform); referer != "" {
		dl = dl.AddHeaders("Referer:" + referer).
			AddHeaders("Origin:" + strings.TrimSuffix(referer, "/"))
	}
	if s.config.Binary != "" {
		dl = dl.SetExecutable(s.config.Binary)
	}
	if s.config.CookieFile != "" && fileExists(s.config.CookieFile) {
		dl = dl.Cookies(s.config.CookieFile)
	}
	if s.proxyURL != "" {
		dl = dl.Proxy(s.proxyURL)
	}
	return dl
}

// Attempt runs yt-dlp with dest as the exact output path
func (s *YTDLPStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	result, err := s.command(req, dest).Run(ctx, req.SourceURL)

	cmdLine := s.config.Binary
	if result != nil {
		cmdLine = ShellEscapeCommand(result.Executable, result.Args...)
	}
	s.log.Debug("yt-dlp finished",
		zap.String("request_id", req.ID),
		zap.String("command", cmdLine),
		zap.Error(err))

	if err != nil {
		s.appendLog(req.ID, cmdLine, result, false, err.Error())
		removeStrayOutput(dest)
		return nil, domain.NewExtractorError(s.Name(), fmt.Errorf("yt-dlp failed: %w", err))
	}

	info := parseYTDLPOutput(result.Stdout)
	if err := adoptOutput(dest, info.Filename); err != nil {
		s.appendLog(req.ID, cmdLine, result, false, err.Error())
		return nil, domain.NewExtractorError(s.Name(), err)
	}

	meta := domain.Metadata{ID: info.ID, Title: info.Title, Uploader: info.Uploader}
	if meta.Uploader == "" {
		meta.Uploader = info.Channel
	}
	if info.LikeCount != nil {
		meta.Likes = int64(*info.LikeCount)
		meta.HasLikes = true
	}

	media, err := mediaAt(dest, meta)
	if err != nil {
		s.appendLog(req.ID, cmdLine, result, false, err.Error())
		return nil, domain.NewExtractorError(s.Name(), err)
	}
	s.appendLog(req.ID, cmdLine, result, true, fmt.Sprintf("%d bytes", media.SizeBytes))
	return media, nil
}

// parseYTDLPOutput reads the last JSON object printed by yt-dlp
func parseYTDLPOutput(stdout string) ytdlpInfo {
	var info ytdlpInfo
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var candidate ytdlpInfo
		if json.Unmarshal([]byte(line), &candidate) == nil {
			info = candidate
		}
	}
	return info
}

// adoptOutput makes sure the downloaded video ends up at dest. yt-dlp may
// report a different final name when it remuxes into another container.
func adoptOutput(dest, reported string) error {
	if fileExists(dest) {
		return nil
	}
	if reported != "" && reported != dest && fileExists(reported) &&
		filepath.Dir(reported) == filepath.Dir(dest) {
		return os.Rename(reported, dest)
	}

	stem := strings.TrimSuffix(dest, filepath.Ext(dest))
	matches, _ := filepath.Glob(globEscape(stem) + ".*")
	for _, match := range matches {
		if isMediaFile(match) {
			return os.Rename(match, dest)
		}
	}
	return fmt.Errorf("yt-dlp reported success but produced no video")
}

// removeStrayOutput deletes the partial files yt-dlp leaves after a failure
func removeStrayOutput(dest string) {
	os.Remove(dest)
	stem := strings.TrimSuffix(dest, filepath.Ext(dest))
	matches, _ := filepath.Glob(globEscape(stem) + ".*")
	for _, match := range matches {
		os.Remove(match)
	}
}

// appendLog writes the command, its output and the outcome to today's yt-dlp log
func (s *YTDLPStrategy) appendLog(requestID, cmdLine string, result *ytdlp.Result, success bool, message string) {
	if s.logsDir == "" {
		return
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	file, err := s.openLogFile()
	if err != nil {
		s.log.Warn("Failed to open yt-dlp log", zap.Error(err))
		return
	}
	defer file.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(file, "\n=== [%s] Fetch: %s ===\n", timestamp, requestID)
	fmt.Fprintf(file, "$ %s\n", cmdLine)
	if result != nil && result.Stderr != "" {
		file.WriteString(strings.TrimRight(result.Stderr, "\n") + "\n")
	}

	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(file, "[%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05"), status, message)
	file.WriteString("=== END ===\n")
}

// openLogFile opens the yt-dlp log file for today
func (s *YTDLPStrategy) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(s.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := filepath.Join(s.logsDir, "ytdlp-"+time.Now().Format("20060102")+".log")
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isMediaFile reports whether path has a video container extension
func isMediaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mkv", ".mov", ".webm", ".m4v":
		return true
	}
	return false
}
