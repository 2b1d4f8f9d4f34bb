package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		DotPath  string `env:"DOT_PATH,default=~/.wordwarden"`
		DBFile   string `env:"DB_FILE,default=violations.db"`
		LogLevel int    `env:"LOG_LEVEL,default=4"`

		MetricsListenAddr string `env:"METRICS_LISTEN_ADDR,default=:2112"`

		API        API
		RateLimit  RateLimit
		Cache      Cache
		Retry      Retry
		Pool       Pool
		BanRules   BanRules
		Moderation Moderation
		LLM        LLM
	}

	API struct {
		Endpoint string        `env:"API_ENDPOINT,default=https://uapis.cn/api/v1/text/profanitycheck"`
		Timeout  time.Duration `env:"API_TIMEOUT,default=10s"`
	}

	RateLimit struct {
		MaxPerMinute    int           `env:"RATE_MAX_PER_MINUTE,default=20"`
		MaxPerHour      int           `env:"RATE_MAX_PER_HOUR,default=300"`
		FailureCooldown time.Duration `env:"RATE_FAILURE_COOLDOWN,default=30s"`
		MaxShortWait    time.Duration `env:"RATE_MAX_SHORT_WAIT,default=5s"`
	}

	Cache struct {
		TTL        time.Duration `env:"CACHE_TTL,default=1h"`
		MaxEntries int           `env:"CACHE_MAX_ENTRIES,default=1000"`
	}

	Retry struct {
		MaxRetries int           `env:"RETRY_MAX,default=3"`
		BaseDelay  time.Duration `env:"RETRY_BASE_DELAY,default=1s"`
		MaxDelay   time.Duration `env:"RETRY_MAX_DELAY,default=10s"`
	}

	Pool struct {
		MinConns       int           `env:"POOL_MIN_CONNS,default=5"`
		MaxConns       int           `env:"POOL_MAX_CONNS,default=10"`
		AcquireTimeout time.Duration `env:"POOL_ACQUIRE_TIMEOUT,default=5s"`
	}

	BanRules struct {
		FirstBanDuration  time.Duration `env:"BAN_FIRST_DURATION,default=1m"`
		SecondBanDuration time.Duration `env:"BAN_SECOND_DURATION,default=10m"`
		ThirdBanDuration  time.Duration `env:"BAN_THIRD_DURATION,default=24h"`
		ResetHour         int           `env:"BAN_RESET_HOUR,default=4"`
		RetentionDays     int           `env:"BAN_RETENTION_DAYS,default=30"`
	}

	Moderation struct {
		ForbiddenWords   []string      `env:"FORBIDDEN_WORDS"`
		WhitelistGroups  []string      `env:"WHITELIST_GROUPS"`
		ExemptRoles      []string      `env:"EXEMPT_ROLES,default=owner,admin"`
		LocalCheckOn     bool          `env:"LOCAL_CHECK,default=true"`
		AutoBanOn        bool          `env:"AUTO_BAN,default=true"`
		UserCooldown     time.Duration `env:"USER_COOLDOWN,default=1m"`
		BypassCooldown   bool          `env:"BYPASS_USER_COOLDOWN,default=true"`
		MaxStoredTextLen int           `env:"MAX_STORED_TEXT_LEN,default=500"`
	}

	LLM struct {
		APIKey  string `env:"LLM_API_KEY"`
		Model   string `env:"LLM_API_MODEL,default=gpt-4o-mini"`
		BaseURL string `env:"LLM_API_URL,default=https://api.openai.com/v1"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("WW_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		if err := cfg.validate(); err != nil {
			globalErr = fmt.Errorf("validate config: %w", err)
			return
		}
		expanded, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = expanded
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// DBPath returns the absolute path of the sqlite database file.
func (c Config) DBPath() string {
	return filepath.Join(c.DotPath, c.DBFile)
}

func (c *Config) validate() error {
	if c.BanRules.ResetHour < 0 || c.BanRules.ResetHour > 23 {
		return fmt.Errorf("reset hour %d out of range", c.BanRules.ResetHour)
	}
	if c.BanRules.RetentionDays < 1 {
		return fmt.Errorf("retention days %d out of range", c.BanRules.RetentionDays)
	}
	if c.RateLimit.MaxPerMinute < 1 || c.RateLimit.MaxPerHour < 1 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.Pool.MaxConns < 1 || c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("pool sizing %d/%d invalid", c.Pool.MinConns, c.Pool.MaxConns)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry count %d invalid", c.Retry.MaxRetries)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache capacity %d invalid", c.Cache.MaxEntries)
	}
	for _, d := range []time.Duration{
		c.BanRules.FirstBanDuration, c.BanRules.SecondBanDuration, c.BanRules.ThirdBanDuration,
	} {
		if d < 0 {
			return fmt.Errorf("negative ban duration %s", d)
		}
	}
	return nil
}
