package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogEntry represents a parsed log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogReader reads, searches and tails the category files written by MultiLogger
type LogReader struct {
	logsDir      string
	pollInterval time.Duration
}

// NewLogReader creates a new log reader
func NewLogReader(logsDir string) *LogReader {
	return &LogReader{logsDir: logsDir, pollInterval: 200 * time.Millisecond}
}

// GetLogPath returns the path to a category log file for a specific date
func (lr *LogReader) GetLogPath(category LogCategory, date time.Time) string {
	return filepath.Join(lr.logsDir, fmt.Sprintf("%s-%s.log", category, date.Format("20060102")))
}

// GetTodayLogPath returns the path to today's log file for a category
func (lr *LogReader) GetTodayLogPath(category LogCategory) string {
	return lr.GetLogPath(category, time.Now())
}

// parseLine converts one JSON line into a LogEntry. Non-JSON lines become plain info entries.
func parseLine(category LogCategory, line string) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{Level: "info", Message: line, Category: string(category)}
	}

	entry := LogEntry{Category: string(category)}
	take := func(keys ...string) string {
		for _, key := range keys {
			if v, ok := raw[key].(string); ok {
				delete(raw, key)
				return v
			}
		}
		return ""
	}
	entry.Timestamp = take("ts", "timestamp")
	entry.Level = take("level")
	entry.Message = take("msg", "message")
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}

// ReadLogs returns the last limit entries of a category file (all when limit <= 0)
func (lr *LogReader) ReadLogs(category LogCategory, date time.Time, limit int) ([]LogEntry, error) {
	file, err := os.Open(lr.GetLogPath(category, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLine(category, line))
	}
	return entries, nil
}

// ReadTodayLogs reads today's log entries for a category
func (lr *LogReader) ReadTodayLogs(category LogCategory, limit int) ([]LogEntry, error) {
	return lr.ReadLogs(category, time.Now(), limit)
}

// SearchLogs returns entries whose message, level or field values contain query
func (lr *LogReader) SearchLogs(category LogCategory, date time.Time, query string, limit int) ([]LogEntry, error) {
	entries, err := lr.ReadLogs(category, date, 0)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var filtered []LogEntry
	for _, entry := range entries {
		if entryMatches(entry, query) {
			filtered = append(filtered, entry)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func entryMatches(entry LogEntry, query string) bool {
	if strings.Contains(strings.ToLower(entry.Message), query) ||
		strings.Contains(strings.ToLower(entry.Level), query) {
		return true
	}
	for _, v := range entry.Fields {
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), query) {
			return true
		}
	}
	return false
}

// TailLogs streams entries appended to today's category file until ctx is done.
// It waits for the file to appear if it does not exist yet.
func (lr *LogReader) TailLogs(ctx context.Context, category LogCategory, entries chan<- LogEntry) error {
	ticker := time.NewTicker(lr.pollInterval)
	defer ticker.Stop()

	var file *os.File
	for file == nil {
		f, err := os.Open(lr.GetTodayLogPath(category))
		switch {
		case err == nil:
			file = f
		case !os.IsNotExist(err):
			return err
		default:
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	var pending string
	for {
		chunk, err := reader.ReadString('\n')
		pending += chunk
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}
		if err != nil {
			return err
		}

		line := strings.TrimSpace(pending)
		pending = ""
		if line == "" {
			continue
		}
		select {
		case entries <- parseLine(category, line):
		case <-ctx.Done():
			return nil
		}
	}
}
