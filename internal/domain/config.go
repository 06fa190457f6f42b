package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	TikTok     TikTokConfig     `mapstructure:"tiktok"`
	Instagram  InstagramConfig  `mapstructure:"instagram"`
	YTDLP      YTDLPConfig      `mapstructure:"ytdlp"`
	ConvertAPI ConvertAPIConfig `mapstructure:"convert_api"`
	History    HistoryConfig    `mapstructure:"history"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"` // bearer token for /api/v1, empty disables auth
}

// FetchConfig contains orchestrator configuration
type FetchConfig struct {
	TempDir         string              `mapstructure:"temp_dir"`
	MaxSizeBytes    int64               `mapstructure:"max_size_bytes"`
	AttemptTimeout  time.Duration       `mapstructure:"attempt_timeout"`
	RequestTimeout  time.Duration       `mapstructure:"request_timeout"`
	ConcurrentLimit int                 `mapstructure:"concurrent_limit"` // 0 means unlimited
	Chains          map[string][]string `mapstructure:"chains"`           // platform -> ordered strategy names
}

// HTTPConfig contains the shared HTTP client configuration
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`   // dial, TLS and response headers
	ProxyURL  string        `mapstructure:"proxy_url"` // http(s):// or socks5://
	UserAgent string        `mapstructure:"user_agent"`
}

// TikTokConfig contains TikTok-specific configuration
type TikTokConfig struct {
	ResolverURL  string   `mapstructure:"resolver_url"`
	HTMLPatterns []string `mapstructure:"html_patterns"`
}

// InstagramConfig contains Instagram-specific configuration
type InstagramConfig struct {
	SessionID    string   `mapstructure:"session_id"`
	AppID        string   `mapstructure:"app_id"`
	HTMLPatterns []string `mapstructure:"html_patterns"`
}

// YTDLPConfig contains yt-dlp configuration
type YTDLPConfig struct {
	Binary     string `mapstructure:"binary"`
	CookieFile string `mapstructure:"cookie_file"`
	Format     string `mapstructure:"format"`
}

// ConvertAPIConfig contains the third-party conversion API configuration
type ConvertAPIConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// HistoryConfig contains fetch history configuration
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // categorized event logs
}

// Strategy names accepted in fetch chains
const (
	StrategyTikTokNative    = "tiktok_native"
	StrategyInstagramNative = "instagram_native"
	StrategyYTDLP           = "ytdlp"
	StrategyHTML            = "html"
	StrategyConvertAPI      = "convert_api"
)

// DefaultMaxSizeBytes keeps uploads under the 50 MB chat bot ceiling
const DefaultMaxSizeBytes int64 = 45 * 1024 * 1024

// DefaultUserAgent is the browser user agent sent to platforms
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Fetch: FetchConfig{
			TempDir:         "$HOME/.reel-extract/tmp",
			MaxSizeBytes:    DefaultMaxSizeBytes,
			AttemptTimeout:  90 * time.Second,
			RequestTimeout:  5 * time.Minute,
			ConcurrentLimit: 4,
			Chains: map[string][]string{
				string(PlatformTikTok):    {StrategyTikTokNative, StrategyYTDLP, StrategyHTML, StrategyConvertAPI},
				string(PlatformInstagram): {StrategyInstagramNative, StrategyYTDLP, StrategyHTML, StrategyConvertAPI},
			},
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: DefaultUserAgent,
		},
		TikTok: TikTokConfig{
			ResolverURL: "https://www.tikwm.com/api/",
			HTMLPatterns: []string{
				`"downloadAddr":"([^"]+)"`,
				`"playAddr":"([^"]+)"`,
				`<video[^>]+src="([^"]+)"`,
			},
		},
		Instagram: InstagramConfig{
			AppID: "936619743392459",
			HTMLPatterns: []string{
				`"video_url":"([^"]+)"`,
				`<meta property="og:video:secure_url" content="([^"]+)"`,
				`<meta property="og:video" content="([^"]+)"`,
				`<video[^>]+src="([^"]+)"`,
			},
		},
		YTDLP: YTDLPConfig{
			Binary: "yt-dlp",
			Format: "best",
		},
		ConvertAPI: ConvertAPIConfig{
			Endpoint: "https://api.savefrom.net/api/convert",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "$HOME/.reel-extract/history.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.reel-extract/logs",
		},
	}
}

// KnownStrategy reports whether name is a strategy that can appear in a chain
func KnownStrategy(name string) bool {
	switch name {
	case StrategyTikTokNative, StrategyInstagramNative, StrategyYTDLP, StrategyHTML, StrategyConvertAPI:
		return true
	}
	return false
}
