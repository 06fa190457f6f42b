package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/yourusername/reel-extract-go/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. REELX_INSTAGRAM_SESSION_ID
const EnvPrefix = "REELX"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.reel-extract")
		v.AddConfigPath("/etc/reel-extract")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configValues flattens config into dotted viper keys. Durations are
// written as strings so saved files stay readable.
func configValues(config *domain.Config) map[string]interface{} {
	values := map[string]interface{}{
		"server.host":       config.Server.Host,
		"server.port":       config.Server.Port,
		"server.auth_token": config.Server.AuthToken,

		"fetch.temp_dir":         config.Fetch.TempDir,
		"fetch.max_size_bytes":   config.Fetch.MaxSizeBytes,
		"fetch.attempt_timeout":  config.Fetch.AttemptTimeout.String(),
		"fetch.request_timeout":  config.Fetch.RequestTimeout.String(),
		"fetch.concurrent_limit": config.Fetch.ConcurrentLimit,

		"http.timeout":    config.HTTP.Timeout.String(),
		"http.proxy_url":  config.HTTP.ProxyURL,
		"http.user_agent": config.HTTP.UserAgent,

		"tiktok.resolver_url":  config.TikTok.ResolverURL,
		"tiktok.html_patterns": config.TikTok.HTMLPatterns,

		"instagram.session_id":    config.Instagram.SessionID,
		"instagram.app_id":        config.Instagram.AppID,
		"instagram.html_patterns": config.Instagram.HTMLPatterns,

		"ytdlp.binary":      config.YTDLP.Binary,
		"ytdlp.cookie_file": config.YTDLP.CookieFile,
		"ytdlp.format":      config.YTDLP.Format,

		"convert_api.endpoint": config.ConvertAPI.Endpoint,
		"convert_api.api_key":  config.ConvertAPI.APIKey,

		"history.enabled":       config.History.Enabled,
		"history.database_path": config.History.DatabasePath,

		"logging.level":       config.Logging.Level,
		"logging.format":      config.Logging.Format,
		"logging.output_path": config.Logging.OutputPath,
		"logging.logs_dir":    config.Logging.LogsDir,
	}
	for platform, chain := range config.Fetch.Chains {
		values["fetch.chains."+platform] = chain
	}
	return values
}

// setDefaults registers every key with viper so environment variables can
// override values that the config file does not mention
func setDefaults(v *viper.Viper, config *domain.Config) {
	for key, value := range configValues(config) {
		v.SetDefault(key, value)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Fetch.TempDir = expandPath(config.Fetch.TempDir)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)
	config.YTDLP.CookieFile = expandPath(config.YTDLP.CookieFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Fetch.TempDir == "" {
		return fmt.Errorf("fetch temp directory not configured")
	}

	if config.Fetch.MaxSizeBytes <= 0 {
		return fmt.Errorf("max size must be positive")
	}

	if config.Fetch.AttemptTimeout < 0 || config.Fetch.RequestTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if config.Fetch.ConcurrentLimit < 0 {
		return fmt.Errorf("concurrent limit cannot be negative")
	}

	if err := validateChains(config.Fetch.Chains); err != nil {
		return err
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// validateChains checks platform keys and strategy names of every fetch chain
func validateChains(chains map[string][]string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no fetch chains configured")
	}

	for key, names := range chains {
		platform := domain.ParsePlatform(key)
		if !domain.ValidatePlatform(platform) {
			return fmt.Errorf("fetch chain for unknown platform: %s", key)
		}
		if len(names) == 0 {
			return fmt.Errorf("fetch chain for %s is empty", key)
		}

		seen := make(map[string]bool)
		for _, name := range names {
			if !domain.KnownStrategy(name) {
				return fmt.Errorf("unknown strategy %q in %s chain", name, key)
			}
			if seen[name] {
				return fmt.Errorf("strategy %q listed twice in %s chain", name, key)
			}
			seen[name] = true

			if name == domain.StrategyTikTokNative && platform != domain.PlatformTikTok ||
				name == domain.StrategyInstagramNative && platform != domain.PlatformInstagram {
				return fmt.Errorf("strategy %q cannot serve %s", name, key)
			}
		}
	}
	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
