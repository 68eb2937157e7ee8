package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"board_sync/internal/usecase/arbiter"
	"board_sync/internal/usecase/detector"
	"board_sync/internal/usecase/game"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	IsLocalCors   bool   `mapstructure:"LOCAL_CORS"`
	RedisUrl      string `mapstructure:"REDIS_URL"`
	MongoUri      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	LichessUrl    string `mapstructure:"LICHESS_URL"`
	LichessToken  string `mapstructure:"LICHESS_TOKEN"`
	LichessGameID string `mapstructure:"LICHESS_GAME_ID"`

	BgAlpha           float64 `mapstructure:"BG_ALPHA"`
	BgInitialVariance float64 `mapstructure:"BG_INITIAL_VARIANCE"`
	BgMinVariance     float64 `mapstructure:"BG_MIN_VARIANCE"`
	ZThreshold        float64 `mapstructure:"Z_THRESHOLD"`
	FullPct           float64 `mapstructure:"FULL_PCT"`
	PartialPct        float64 `mapstructure:"PARTIAL_PCT"`
	SlightPct         float64 `mapstructure:"SLIGHT_PCT"`
	PresenceStdDev    float64 `mapstructure:"PRESENCE_STDDEV"`

	NoiseMaxSquares int `mapstructure:"NOISE_MAX_SQUARES"`
	NoiseFullCells  int `mapstructure:"NOISE_FULL_CELLS"`
	CooldownFrames  int `mapstructure:"COOLDOWN_FRAMES"`
	StabilityFrames int `mapstructure:"STABILITY_FRAMES"`

	SendTimeout      time.Duration `mapstructure:"SEND_TIMEOUT"`
	SendRetries      int           `mapstructure:"SEND_RETRIES"`
	RetryBackoff     time.Duration `mapstructure:"RETRY_BACKOFF"`
	PromotionTimeout time.Duration `mapstructure:"PROMOTION_TIMEOUT"`

	ScoresheetDir string `mapstructure:"SCORESHEET_DIR"`
}

var defaults = map[string]any{
	"SERVER_PORT":         "8080",
	"LOCAL_CORS":          false,
	"REDIS_URL":           "",
	"MONGO_URI":           "",
	"MONGO_DATABASE":      "board_sync",
	"LICHESS_URL":         "https://lichess.org",
	"LICHESS_TOKEN":       "",
	"LICHESS_GAME_ID":     "",
	"BG_ALPHA":            0.15,
	"BG_INITIAL_VARIANCE": 400.0,
	"BG_MIN_VARIANCE":     1.0,
	"Z_THRESHOLD":         2.5,
	"FULL_PCT":            75.0,
	"PARTIAL_PCT":         15.0,
	"SLIGHT_PCT":          5.0,
	"PRESENCE_STDDEV":     18.0,
	"NOISE_MAX_SQUARES":   4,
	"NOISE_FULL_CELLS":    2,
	"COOLDOWN_FRAMES":     5,
	"STABILITY_FRAMES":    12,
	"SEND_TIMEOUT":        "10s",
	"SEND_RETRIES":        3,
	"RETRY_BACKOFF":       "250ms",
	"PROMOTION_TIMEOUT":   "2m",
	"SCORESHEET_DIR":      "",
}

// Setup reads cfgPath (dotenv format) over the defaults; environment
// variables win over both. An empty path reads only the environment.
func Setup(cfgPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.BgAlpha <= 0 || c.BgAlpha > 1:
		return fmt.Errorf("BG_ALPHA must be in (0,1], got %v", c.BgAlpha)
	case c.BgMinVariance <= 0:
		return fmt.Errorf("BG_MIN_VARIANCE must be positive, got %v", c.BgMinVariance)
	case c.BgInitialVariance < c.BgMinVariance:
		return fmt.Errorf("BG_INITIAL_VARIANCE must be at least BG_MIN_VARIANCE")
	case c.ZThreshold <= 0:
		return fmt.Errorf("Z_THRESHOLD must be positive, got %v", c.ZThreshold)
	case !(c.FullPct > c.PartialPct && c.PartialPct > c.SlightPct && c.SlightPct >= 0 && c.FullPct <= 100):
		return fmt.Errorf("breakpoints must satisfy 100 >= FULL_PCT > PARTIAL_PCT > SLIGHT_PCT >= 0")
	case c.NoiseMaxSquares < 2:
		return fmt.Errorf("NOISE_MAX_SQUARES must be at least 2, got %d", c.NoiseMaxSquares)
	case c.NoiseFullCells < 1:
		return fmt.Errorf("NOISE_FULL_CELLS must be positive, got %d", c.NoiseFullCells)
	case c.CooldownFrames < 1:
		return fmt.Errorf("COOLDOWN_FRAMES must be positive, got %d", c.CooldownFrames)
	case c.StabilityFrames < 1:
		return fmt.Errorf("STABILITY_FRAMES must be positive, got %d", c.StabilityFrames)
	case c.SendTimeout <= 0:
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %v", c.SendTimeout)
	case c.SendRetries < 0:
		return fmt.Errorf("SEND_RETRIES must not be negative, got %d", c.SendRetries)
	case c.RetryBackoff < 0:
		return fmt.Errorf("RETRY_BACKOFF must not be negative, got %v", c.RetryBackoff)
	}
	return nil
}

func (c *Config) BackgroundParams() detector.Params {
	return detector.Params{
		Alpha:           c.BgAlpha,
		InitialVariance: c.BgInitialVariance,
		MinVariance:     c.BgMinVariance,
		ZThreshold:      c.ZThreshold,
		FullPct:         c.FullPct,
		PartialPct:      c.PartialPct,
		SlightPct:       c.SlightPct,
	}
}

func (c *Config) ArbiterParams() arbiter.Params {
	return arbiter.Params{
		MaxMoveSquares:  c.NoiseMaxSquares,
		NoiseFullCells:  c.NoiseFullCells,
		CooldownFrames:  c.CooldownFrames,
		StabilityFrames: c.StabilityFrames,
	}
}

func (c *Config) EngineParams() game.EngineParams {
	return game.EngineParams{
		SendTimeout:  c.SendTimeout,
		SendRetries:  c.SendRetries,
		RetryBackoff: c.RetryBackoff,
	}
}

func (c *Config) SessionParams() game.SessionParams {
	return game.SessionParams{
		PromotionTimeout: c.PromotionTimeout,
	}
}
