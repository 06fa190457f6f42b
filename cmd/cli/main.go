package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/yourusername/reel-extract-go/internal/app"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/pkg/logger"
)

var (
	serverURL   string
	authToken   string
	configFile  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "reel-extract",
		Short: "Reel-Extract CLI - fetch TikTok and Instagram videos",
		Long:  `A command-line client for the reel-extract server, which fetches TikTok and Instagram videos through a chain of fallback strategies.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv(app.EnvPrefix+"_SERVER_AUTH_TOKEN"), "Bearer token for the server API")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func client() *apiClient {
	return newAPIClient(serverURL, authToken)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url or text]",
	Short: "Fetch a video and save it locally",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		outDir, _ := cmd.Flags().GetString("output")
		quiet, _ := cmd.Flags().GetBool("quiet")

		result, err := fetchVideo(client(), strings.Join(args, " "), outDir, quiet)
		exitOnError(err)

		fmt.Printf("Saved %s (%s, via %s)\n", result.Path, humanBytes(result.Size), result.Strategy)
		if result.Caption != "" {
			fmt.Println(result.Caption)
		}
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify [url]",
	Short: "Show which platform and strategy chain a URL maps to",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var result struct {
			URL       string   `json:"url"`
			Platform  string   `json:"platform"`
			Supported bool     `json:"supported"`
			Chain     []string `json:"chain"`
		}
		exitOnError(client().getJSON("/api/v1/classify?url="+url.QueryEscape(args[0]), &result))

		fmt.Printf("URL:       %s\n", result.URL)
		fmt.Printf("Platform:  %s\n", result.Platform)
		fmt.Printf("Supported: %v\n", result.Supported)
		if len(result.Chain) > 0 {
			fmt.Printf("Chain:     %s\n", strings.Join(result.Chain, " -> "))
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent fetches",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		query := url.Values{}
		for _, key := range []string{"status", "platform", "strategy", "reason"} {
			if value, _ := cmd.Flags().GetString(key); value != "" {
				query.Set(key, value)
			}
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query.Set("limit", strconv.Itoa(limit))

		var records []domain.FetchRecord
		exitOnError(client().getJSON("/api/v1/history?"+query.Encode(), &records))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLATFORM\tSTATUS\tSTRATEGY\tREASON\tSIZE\tURL\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(r.ID, 8),
				r.Platform,
				r.Status,
				r.Strategy,
				r.Reason,
				humanBytes(r.SizeBytes),
				truncate(r.URL, 40),
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show details of a past fetch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var r domain.FetchRecord
		exitOnError(client().getJSON("/api/v1/history/"+url.PathEscape(args[0]), &r))

		fmt.Printf("Fetch Details:\n")
		fmt.Printf("  ID:       %s\n", r.ID)
		fmt.Printf("  URL:      %s\n", r.URL)
		fmt.Printf("  Platform: %s\n", r.Platform)
		fmt.Printf("  Status:   %s\n", r.Status)
		fmt.Printf("  Attempts: %d\n", r.Attempts)
		fmt.Printf("  Duration: %dms\n", r.DurationMs)
		fmt.Printf("  Created:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.Strategy != "" {
			fmt.Printf("  Strategy: %s\n", r.Strategy)
			fmt.Printf("  Size:     %s\n", humanBytes(r.SizeBytes))
		}
		if r.Reason != "" {
			fmt.Printf("  Reason:   %s\n", r.Reason)
			fmt.Printf("  Error:    %s\n", r.ErrorMessage)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fetch statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats domain.FetchStats
		exitOnError(client().getJSON("/api/v1/history/stats", &stats))

		fmt.Println("Fetch Statistics:")
		fmt.Printf("  Total:       %d\n", stats.Total)
		fmt.Printf("  Succeeded:   %d\n", stats.Succeeded)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		fmt.Printf("  Too large:   %d\n", stats.TooLarge)
		fmt.Printf("  Unsupported: %d\n", stats.Unsupported)
		fmt.Printf("  Exhausted:   %d\n", stats.Exhausted)
		if len(stats.Wins) > 0 {
			fmt.Println("Wins by strategy:")
			for strategy, count := range stats.Wins {
				fmt.Printf("  %-16s %d\n", strategy, count)
			}
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View event logs (fetch, error)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		category := string(logger.CategoryFetch)
		if len(args) == 1 {
			category = args[0]
		}
		follow, _ := cmd.Flags().GetBool("follow")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if follow {
			exitOnError(followLogs(category, jsonOutput))
			return
		}

		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		query := url.Values{"limit": {strconv.Itoa(limit)}}
		path := "/api/v1/logs/" + url.PathEscape(category)
		if search != "" {
			path += "/search"
			query.Set("q", search)
		}

		var result struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		exitOnError(client().getJSON(path+"?"+query.Encode(), &result))
		for _, entry := range result.Entries {
			printEntry(entry, jsonOutput)
		}
	},
}

// followLogs streams new entries over the log WebSocket until interrupted
func followLogs(category string, jsonOutput bool) error {
	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(serverURL, category), header)
	if err != nil {
		return fmt.Errorf("failed to connect to log stream: %w", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		conn.Close()
	}()

	for {
		var entry logger.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			return nil
		}
		printEntry(entry, jsonOutput)
	}
}

// wsURL converts the server URL into the log stream WebSocket URL
func wsURL(base, category string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/v1/logs/stream?category=" + url.QueryEscape(category)
}

func printEntry(entry logger.LogEntry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(entry)
		fmt.Println(string(data))
		return
	}
	line := fmt.Sprintf("%s %-5s %s", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message)
	for _, key := range []string{"request_id", "strategy", "platform", "error"} {
		if v, ok := entry.Fields[key]; ok {
			line += fmt.Sprintf(" %s=%v", key, v)
		}
	}
	fmt.Println(line)
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "configs/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				exitOnError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
		}
		exitOnError(app.SaveConfig(domain.DefaultConfig(), path))
		fmt.Printf("Config written to %s\n", path)
	},
}

func init() {
	fetchCmd.Flags().StringP("output", "o", ".", "Directory to save the video in")
	fetchCmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	historyCmd.Flags().StringP("status", "s", "", "Filter by status (succeeded, failed)")
	historyCmd.Flags().StringP("platform", "p", "", "Filter by platform (tiktok, instagram)")
	historyCmd.Flags().String("strategy", "", "Filter by winning strategy")
	historyCmd.Flags().String("reason", "", "Filter by failure reason")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of records")
	logsCmd.Flags().BoolP("follow", "f", false, "Stream new entries")
	logsCmd.Flags().StringP("search", "s", "", "Only show entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 100, "Number of entries")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	initConfigCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
