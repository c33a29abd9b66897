package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	CapsBanPolicyGlobal   = "global"
	CapsBanPolicyCategory = "category"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		LogLevel         int    `env:"LOG_LEVEL,default=2"`
		DotPath          string `env:"DOT_PATH,default=~/.chatguard"`
		DBFile           string `env:"DB_FILE,default=guard.db"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112"`
		ProtectionFile   string `env:"PROTECTION_FILE"`
		Protection       Protection
		RateLimits       RateLimits
	}

	Protection struct {
		// AutoBanWarns is the warn count at which a manual warn suggests a ban.
		AutoBanWarns int   `env:"AUTO_BAN_WARNS,default=3" yaml:"auto_ban_warns"`
		Spam         Spam  `env:",prefix=SPAM_" yaml:"spam"`
		Flood        Flood `env:",prefix=FLOOD_" yaml:"flood"`
		Caps         Caps  `env:",prefix=CAPS_" yaml:"caps"`
		Raid         Raid  `env:",prefix=RAID_" yaml:"anti_raid"`
		Bots         Bots  `env:",prefix=BOTS_" yaml:"bots"`
	}

	Spam struct {
		Enabled      bool          `env:"ENABLED,default=false" yaml:"enabled"`
		Threshold    int           `env:"THRESHOLD,default=8" yaml:"threshold"`
		BanThreshold int           `env:"BAN_THRESHOLD,default=15" yaml:"ban_threshold"`
		Window       time.Duration `env:"WINDOW,default=2m" yaml:"time_window"`
		BanWarns     int           `env:"BAN_WARNS,default=3" yaml:"ban_warns"`
	}

	Flood struct {
		Enabled      bool          `env:"ENABLED,default=false" yaml:"enabled"`
		Threshold    int           `env:"THRESHOLD,default=15" yaml:"threshold"`
		BanThreshold int           `env:"BAN_THRESHOLD,default=25" yaml:"ban_threshold"`
		Window       time.Duration `env:"WINDOW,default=10s" yaml:"time_window"`
		BanWarns     int           `env:"BAN_WARNS,default=3" yaml:"ban_warns"`
	}

	Caps struct {
		Enabled   bool    `env:"ENABLED,default=true" yaml:"enabled"`
		Threshold float64 `env:"THRESHOLD,default=0.95" yaml:"threshold"`
		MinLength int     `env:"MIN_LENGTH,default=20" yaml:"min_length"`
		BanWarns  int     `env:"BAN_WARNS,default=3" yaml:"ban_warns"`
		// BanPolicy selects which warns count toward BanWarns: "global" counts
		// every warn of the user in the chat, "category" only caps warns.
		BanPolicy string `env:"BAN_POLICY,default=global" yaml:"ban_policy"`
	}

	Raid struct {
		Enabled   bool          `env:"ENABLED,default=true" yaml:"enabled"`
		Threshold int           `env:"THRESHOLD,default=10" yaml:"threshold"`
		Window    time.Duration `env:"WINDOW,default=10s" yaml:"time_window"`
	}

	Bots struct {
		Enabled bool `env:"ENABLED,default=true" yaml:"enabled"`
	}

	RateLimits struct {
		CommandLimit int           `env:"RATE_COMMAND_LIMIT,default=30"`
		Period       time.Duration `env:"RATE_PERIOD,default=1m"`
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
			Lookuper: envconfig.PrefixLookuper("NG_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		if cfg.ProtectionFile != "" {
			if err := LoadProtectionFile(cfg.ProtectionFile, &cfg.Protection); err != nil {
				globalErr = err
				return
			}
		}
		if err := cfg.Protection.Validate(); err != nil {
			globalErr = err
			return
		}
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

// LoadProtectionFile overlays detector settings from a YAML profile. Keys
// absent from the file keep their current values.
func LoadProtectionFile(path string, p *Protection) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read protection file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode protection file %s: %w", path, err)
	}
	return nil
}

func (p Protection) Validate() error {
	if p.Spam.Enabled && (p.Spam.Threshold <= 0 || p.Spam.Window <= 0) {
		return fmt.Errorf("spam: threshold and window must be positive")
	}
	if p.Flood.Enabled && (p.Flood.Threshold <= 0 || p.Flood.Window <= 0) {
		return fmt.Errorf("flood: threshold and window must be positive")
	}
	if p.Caps.Enabled && (p.Caps.Threshold <= 0 || p.Caps.Threshold > 1) {
		return fmt.Errorf("caps: threshold must be in (0, 1], got %v", p.Caps.Threshold)
	}
	switch p.Caps.BanPolicy {
	case CapsBanPolicyGlobal, CapsBanPolicyCategory:
	default:
		return fmt.Errorf("caps: unknown ban policy %q", p.Caps.BanPolicy)
	}
	if p.Raid.Enabled && (p.Raid.Threshold <= 0 || p.Raid.Window <= 0) {
		return fmt.Errorf("anti_raid: threshold and window must be positive")
	}
	return nil
}

// DefaultProtection returns the settings the bot ships with.
func DefaultProtection() Protection {
	return Protection{
		AutoBanWarns: 3,
		Spam:         Spam{Threshold: 8, BanThreshold: 15, Window: 2 * time.Minute, BanWarns: 3},
		Flood:        Flood{Threshold: 15, BanThreshold: 25, Window: 10 * time.Second, BanWarns: 3},
		Caps:         Caps{Enabled: true, Threshold: 0.95, MinLength: 20, BanWarns: 3, BanPolicy: CapsBanPolicyGlobal},
		Raid:         Raid{Enabled: true, Threshold: 10, Window: 10 * time.Second},
		Bots:         Bots{Enabled: true},
	}
}
