// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with RATELANE_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or RATELANE_DATA_DATABASE_SOURCE: MySQL connection string
//
// Optional shortcuts:
//   - REDIS_ADDR: Redis address
//   - HTTP_PROXY_URL: outbound proxy for scrapers (socks5:// or http://)
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RATELANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "RATELANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "RATELANE_DATA_REDIS_ADDR")
	_ = v.BindEnv("transport.proxy_url", "HTTP_PROXY_URL", "RATELANE_TRANSPORT_PROXY_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: v.GetDuration("server.grpc.timeout"),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Transport: &Transport{
			ProxyURL:  v.GetString("transport.proxy_url"),
			UserAgent: v.GetString("transport.user_agent"),
		},
		Health: &Health{
			UnhealthyAfter: v.GetInt("health.unhealthy_after"),
			ResponseWindow: v.GetInt("health.response_window"),
		},
		History: &History{
			Retention:       v.GetDuration("history.retention"),
			WriteTimeout:    v.GetDuration("history.write_timeout"),
			LatestTTL:       v.GetDuration("history.latest_ttl"),
			WindowCacheSize: v.GetInt("history.window_cache_size"),
			WindowCacheTTL:  v.GetDuration("history.window_cache_ttl"),
		},
		Jobs: &Jobs{
			RefreshSpec: v.GetString("jobs.refresh_spec"),
			PruneSpec:   v.GetString("jobs.prune_spec"),
		},
		Sources: &Sources{
			BCV: &BCV{
				Source: loadSource(v, "sources.bcv"),
				USD:    loadRange(v, "sources.bcv.usd"),
				EUR:    loadRange(v, "sources.bcv.eur"),
			},
			P2P: &P2P{
				Source:    loadSource(v, "sources.p2p"),
				Price:     loadRange(v, "sources.p2p.price"),
				Asset:     v.GetString("sources.p2p.asset"),
				Fiat:      v.GetString("sources.p2p.fiat"),
				Pages:     v.GetInt("sources.p2p.pages"),
				Rows:      v.GetInt("sources.p2p.rows"),
				PageDelay: v.GetDuration("sources.p2p.page_delay"),
			},
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func loadSource(v *viper.Viper, prefix string) Source {
	return Source{
		URL:           v.GetString(prefix + ".url"),
		Timeout:       v.GetDuration(prefix + ".timeout"),
		MaxRetries:    v.GetInt(prefix + ".max_retries"),
		BaseDelay:     v.GetDuration(prefix + ".base_delay"),
		MaxDelay:      v.GetDuration(prefix + ".max_delay"),
		JitterPercent: v.GetInt(prefix + ".jitter_percent"),
		SuccessTTL:    v.GetDuration(prefix + ".success_ttl"),
		Breaker: &Breaker{
			FailureThreshold: v.GetInt(prefix + ".breaker.failure_threshold"),
			Timeout:          v.GetDuration(prefix + ".breaker.timeout"),
			SuccessThreshold: v.GetInt(prefix + ".breaker.success_threshold"),
		},
	}
}

func loadRange(v *viper.Viper, prefix string) Range {
	return Range{
		Min: v.GetFloat64(prefix + ".min"),
		Max: v.GetFloat64(prefix + ".max"),
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("transport.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("health.unhealthy_after", 5)
	v.SetDefault("health.response_window", 100)

	v.SetDefault("history.retention", 90*24*time.Hour)
	v.SetDefault("history.write_timeout", 5*time.Second)
	v.SetDefault("history.latest_ttl", 24*time.Hour)
	v.SetDefault("history.window_cache_size", 64)
	v.SetDefault("history.window_cache_ttl", 10*time.Minute)

	// Cron specs use the seconds field (cron.WithSeconds)
	v.SetDefault("jobs.refresh_spec", "0 */1 * * * *")
	v.SetDefault("jobs.prune_spec", "0 15 3 * * *")

	// BCV official rates
	v.SetDefault("sources.bcv.url", "https://www.bcv.org.ve/")
	v.SetDefault("sources.bcv.timeout", 15*time.Second)
	v.SetDefault("sources.bcv.max_retries", 3)
	v.SetDefault("sources.bcv.base_delay", time.Second)
	v.SetDefault("sources.bcv.max_delay", 10*time.Second)
	v.SetDefault("sources.bcv.jitter_percent", 25)
	v.SetDefault("sources.bcv.success_ttl", 5*time.Minute)
	v.SetDefault("sources.bcv.breaker.failure_threshold", 5)
	v.SetDefault("sources.bcv.breaker.timeout", 60*time.Second)
	v.SetDefault("sources.bcv.breaker.success_threshold", 2)
	v.SetDefault("sources.bcv.usd.min", 150.0)
	v.SetDefault("sources.bcv.usd.max", 250.0)
	v.SetDefault("sources.bcv.eur.min", 180.0)
	v.SetDefault("sources.bcv.eur.max", 280.0)

	// Binance P2P USDT/VES
	v.SetDefault("sources.p2p.url", "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search")
	v.SetDefault("sources.p2p.timeout", 10*time.Second)
	v.SetDefault("sources.p2p.max_retries", 2)
	v.SetDefault("sources.p2p.base_delay", time.Second)
	v.SetDefault("sources.p2p.max_delay", 5*time.Second)
	v.SetDefault("sources.p2p.jitter_percent", 25)
	v.SetDefault("sources.p2p.success_ttl", 30*time.Second)
	v.SetDefault("sources.p2p.breaker.failure_threshold", 5)
	v.SetDefault("sources.p2p.breaker.timeout", 60*time.Second)
	v.SetDefault("sources.p2p.breaker.success_threshold", 2)
	v.SetDefault("sources.p2p.price.min", 100.0)
	v.SetDefault("sources.p2p.price.max", 500.0)
	v.SetDefault("sources.p2p.asset", "USDT")
	v.SetDefault("sources.p2p.fiat", "VES")
	v.SetDefault("sources.p2p.pages", 2)
	v.SetDefault("sources.p2p.rows", 20)
	v.SetDefault("sources.p2p.page_delay", 500*time.Millisecond)
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all problems at once.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		problems = append(problems, "data.database.source (MYSQL_DSN) is required")
	}

	if bc.Health != nil && bc.Health.UnhealthyAfter < 1 {
		problems = append(problems, "health.unhealthy_after must be >= 1")
	}

	if bc.Sources != nil {
		if bc.Sources.BCV != nil {
			problems = append(problems, validateSource("sources.bcv", &bc.Sources.BCV.Source)...)
			problems = append(problems, validateRange("sources.bcv.usd", bc.Sources.BCV.USD)...)
			problems = append(problems, validateRange("sources.bcv.eur", bc.Sources.BCV.EUR)...)
		}
		if bc.Sources.P2P != nil {
			problems = append(problems, validateSource("sources.p2p", &bc.Sources.P2P.Source)...)
			problems = append(problems, validateRange("sources.p2p.price", bc.Sources.P2P.Price)...)
			if bc.Sources.P2P.Pages < 1 {
				problems = append(problems, "sources.p2p.pages must be >= 1")
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}

func validateSource(prefix string, s *Source) []string {
	var problems []string
	if s.URL == "" {
		problems = append(problems, prefix+".url is required")
	}
	if s.Timeout <= 0 {
		problems = append(problems, prefix+".timeout must be positive")
	}
	if s.MaxRetries < 0 {
		problems = append(problems, prefix+".max_retries must be >= 0")
	}
	if s.MaxDelay < s.BaseDelay {
		problems = append(problems, prefix+".max_delay must be >= base_delay")
	}
	if s.JitterPercent < 0 || s.JitterPercent > 100 {
		problems = append(problems, prefix+".jitter_percent must be within [0, 100]")
	}
	if s.Breaker == nil || s.Breaker.FailureThreshold < 1 || s.Breaker.SuccessThreshold < 1 {
		problems = append(problems, prefix+".breaker thresholds must be >= 1")
	}
	return problems
}

func validateRange(prefix string, r Range) []string {
	if r.Min <= 0 || r.Max <= r.Min {
		return []string{prefix + " must satisfy 0 < min < max"}
	}
	return nil
}
