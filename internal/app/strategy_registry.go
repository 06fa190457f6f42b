package app

import (
	"fmt"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/internal/infrastructure"
	"go.uber.org/zap"
)

// BuildStrategies constructs every known strategy from config, sharing one HTTP client
func BuildStrategies(config *domain.Config, client *infrastructure.HTTPClient, log *zap.Logger) (map[string]domain.Strategy, error) {
	if log == nil {
		log = zap.NewNop()
	}
	html, err := infrastructure.NewHTMLStrategy(client, &config.TikTok, &config.Instagram, log.Named("html"))
	if err != nil {
		return nil, err
	}

	return map[string]domain.Strategy{
		domain.StrategyTikTokNative:    infrastructure.NewTikTokNativeStrategy(client, &config.TikTok, log.Named("tiktok_native")),
		domain.StrategyInstagramNative: infrastructure.NewInstagramNativeStrategy(client, &config.Instagram, log.Named("instagram_native")),
		domain.StrategyYTDLP:           infrastructure.NewYTDLPStrategy(&config.YTDLP, &config.HTTP, config.Logging.LogsDir, log.Named("ytdlp")),
		domain.StrategyHTML:            html,
		domain.StrategyConvertAPI:      infrastructure.NewConvertAPIStrategy(client, &config.ConvertAPI, log.Named("convert_api")),
	}, nil
}

// BuildChains resolves the configured strategy names into ordered chains per platform
func BuildChains(chains map[string][]string, strategies map[string]domain.Strategy) (map[domain.Platform][]domain.Strategy, error) {
	if err := validateChains(chains); err != nil {
		return nil, err
	}

	resolved := make(map[domain.Platform][]domain.Strategy, len(chains))
	for key, names := range chains {
		platform := domain.ParsePlatform(key)
		for _, name := range names {
			strategy, ok := strategies[name]
			if !ok {
				return nil, fmt.Errorf("strategy %q is not available", name)
			}
			resolved[platform] = append(resolved[platform], strategy)
		}
	}
	return resolved, nil
}
