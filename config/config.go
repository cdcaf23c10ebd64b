package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Security SecurityConfig `mapstructure:"security"`
	AI       AIConfig       `mapstructure:"ai"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /api/admin to these client IPs. Empty allows any IP.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// GameConfig holds the tunable rules of the quest loop.
type GameConfig struct {
	DailyRefreshLimit    int           `mapstructure:"daily_refresh_limit"`
	DailyCompletionLimit int           `mapstructure:"daily_completion_limit"`
	GuildMaxMembers      int           `mapstructure:"guild_max_members"`
	GuildQuestTarget     int           `mapstructure:"guild_quest_target"`
	GuildQuestXPReward   int64         `mapstructure:"guild_quest_xp_reward"`
	GuildQuestDuration   time.Duration `mapstructure:"guild_quest_duration"`
	ContributionXP       int64         `mapstructure:"contribution_xp"`
	// Timezone decides where calendar days begin for streaks and daily limits.
	Timezone         string        `mapstructure:"timezone"`
	ExpirySweepEvery time.Duration `mapstructure:"expiry_sweep_every"`
	RankingRebuild   time.Duration `mapstructure:"ranking_rebuild"`
}

type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTLH   time.Duration `mapstructure:"jwt_ttl_h"`
	// ShortTTL is the session lifetime when the client did not ask to be remembered.
	ShortTTL       time.Duration `mapstructure:"short_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AIConfig struct {
	// APIKey enables the Gemini generator. Without it quests come from offline templates.
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistorySize int           `mapstructure:"history_size"`
}

// Load reads config from the given YAML file path. A missing file is not an
// error when path is empty; defaults and LIFEQUEST_* env vars still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("lifequest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/lifequest.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.daily_refresh_limit", 3)
	v.SetDefault("game.daily_completion_limit", 7)
	v.SetDefault("game.guild_max_members", 50)
	v.SetDefault("game.guild_quest_target", 100)
	v.SetDefault("game.guild_quest_xp_reward", 10000)
	v.SetDefault("game.guild_quest_duration", "720h")
	v.SetDefault("game.contribution_xp", 50)
	v.SetDefault("game.timezone", "UTC")
	v.SetDefault("game.expiry_sweep_every", "1m")
	v.SetDefault("game.ranking_rebuild", "5m")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.short_ttl", "12h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.history_size", 20)
}

// Location resolves the configured game timezone, falling back to UTC.
func (g GameConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultGame returns a GameConfig populated with the built-in rules.
func DefaultGame() GameConfig {
	return GameConfig{
		DailyRefreshLimit:    3,
		DailyCompletionLimit: 7,
		GuildMaxMembers:      50,
		GuildQuestTarget:     100,
		GuildQuestXPReward:   10000,
		GuildQuestDuration:   30 * 24 * time.Hour,
		ContributionXP:       50,
		Timezone:             "UTC",
		ExpirySweepEvery:     time.Minute,
		RankingRebuild:       5 * time.Minute,
	}
}
