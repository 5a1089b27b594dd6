// Package config loads the environment-variable surface spec.md §6
// names, via viper so the same values can come from a .env file, an
// actual environment, or a mounted config file in production.
package config

import (
	"fmt"
	"strings"

	"clobcore/internal/common"

	"github.com/spf13/viper"
)

// Config is every external knob the server binary needs at startup.
type Config struct {
	DatabaseURL     string
	RedisURL        string
	APIHost         string
	APIPort         int
	WebSocketHost   string
	WebSocketPort   int
	Markets         []common.TradingPair
	IngressCapacity int
}

// Load reads configuration from the environment (and a .env file in the
// working directory, if present), applying the same defaults
// original_source/src/main.rs falls back to for the non-required knobs.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("API_HOST", "127.0.0.1")
	v.SetDefault("API_PORT", 8000)
	v.SetDefault("WEBSOCKET_HOST", "127.0.0.1")
	v.SetDefault("WEBSOCKET_PORT", 8080)
	v.SetDefault("MARKETS", "BTC_USD,ETH_USD")
	v.SetDefault("INGRESS_CAPACITY", 256)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: reading .env: %w", err)
		}
	}

	databaseURL := v.GetString("DATABASE_URL")
	if databaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL must be set")
	}
	redisURL := v.GetString("REDIS_URL")
	if redisURL == "" {
		return Config{}, fmt.Errorf("config: REDIS_URL must be set")
	}

	markets, err := parseMarkets(v.GetString("MARKETS"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL:     databaseURL,
		RedisURL:        redisURL,
		APIHost:         v.GetString("API_HOST"),
		APIPort:         v.GetInt("API_PORT"),
		WebSocketHost:   v.GetString("WEBSOCKET_HOST"),
		WebSocketPort:   v.GetInt("WEBSOCKET_PORT"),
		Markets:         markets,
		IngressCapacity: v.GetInt("INGRESS_CAPACITY"),
	}, nil
}

func parseMarkets(raw string) ([]common.TradingPair, error) {
	var pairs []common.TradingPair
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair, err := common.ParseTradingPair(part)
		if err != nil {
			return nil, fmt.Errorf("config: invalid entry %q in MARKETS: %w", part, err)
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("config: MARKETS must name at least one pair")
	}
	return pairs, nil
}
