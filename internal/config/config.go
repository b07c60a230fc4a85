// Package config loads server configuration from a YAML file, environment
// variables prefixed with THREATLANES_, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
)

// EnvPrefix prefixes every environment override, e.g.
// THREATLANES_SERVER_HTTP_ADDRESS.
const EnvPrefix = "THREATLANES"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Planner  PlannerConfig  `mapstructure:"planner"`
	Content  ContentConfig  `mapstructure:"content"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig groups the listeners.
type ServerConfig struct {
	HTTP            HTTPConfig      `mapstructure:"http"`
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// HTTPConfig configures the REST facade.
type HTTPConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"` // gin mode: debug, release or test
}

// GRPCConfig configures the health listener.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// WebSocketConfig configures state pushes.
type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig selects the zap configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the match result store. Driver is "sqlite",
// "postgres" or "none".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RulesConfig overrides rule numbers. Zero fields keep the default.
type RulesConfig struct {
	MaxTokens        int `mapstructure:"max_tokens"`
	MaxSlots         int `mapstructure:"max_slots"`
	StartingSlots    int `mapstructure:"starting_slots"`
	MaxWeight        int `mapstructure:"max_weight"`
	EnrageSurcharge  int `mapstructure:"enrage_surcharge"`
	MassReduction    int `mapstructure:"mass_reduction"`
	AttackTokenValue int `mapstructure:"attack_token_value"`
	BossTokenValue   int `mapstructure:"boss_token_value"`
	MarketRowSize    int `mapstructure:"market_row_size"`
	BossRound        int `mapstructure:"boss_round"`
	BossRoundLimit   int `mapstructure:"boss_round_limit"`
	WoundPenalty     int `mapstructure:"wound_penalty"`
	RealignCost      int `mapstructure:"realign_cost"`
	ConvertMax       int `mapstructure:"convert_max"`
}

// PlannerConfig bounds bot and plan-endpoint searches.
type PlannerConfig struct {
	MaxDepth    int             `mapstructure:"max_depth"`
	MaxBranches int             `mapstructure:"max_branches"`
	TopN        int             `mapstructure:"top_n"`
	TurnTimeout time.Duration   `mapstructure:"turn_timeout"`
	Weights     planner.Weights `mapstructure:"weights"`
}

// ContentConfig points at card data. An empty Dir uses the embedded decks.
type ContentConfig struct {
	Dir string `mapstructure:"dir"`
}

// ReplayConfig sets where finished replays are written. Empty keeps them in
// memory.
type ReplayConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.mode", "release")
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:threatlanes.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	rules := game.DefaultRules()
	v.SetDefault("rules.max_tokens", rules.MaxTokens)
	v.SetDefault("rules.max_slots", rules.MaxSlots)
	v.SetDefault("rules.starting_slots", rules.StartingSlots)
	v.SetDefault("rules.max_weight", rules.MaxWeight)
	v.SetDefault("rules.enrage_surcharge", rules.EnrageSurcharge)
	v.SetDefault("rules.mass_reduction", rules.MassReduction)
	v.SetDefault("rules.attack_token_value", rules.AttackTokenValue)
	v.SetDefault("rules.boss_token_value", rules.BossTokenValue)
	v.SetDefault("rules.market_row_size", rules.MarketRowSize)
	v.SetDefault("rules.boss_round", rules.BossRound)
	v.SetDefault("rules.boss_round_limit", rules.BossRoundLimit)
	v.SetDefault("rules.wound_penalty", rules.WoundPenalty)
	v.SetDefault("rules.realign_cost", rules.RealignCost)
	v.SetDefault("rules.convert_max", rules.ConvertMax)

	w := planner.DefaultWeights()
	v.SetDefault("planner.max_depth", planner.DefaultMaxDepth)
	v.SetDefault("planner.max_branches", planner.DefaultMaxBranches)
	v.SetDefault("planner.top_n", 10)
	v.SetDefault("planner.turn_timeout", 2*time.Second)
	v.SetDefault("planner.weights.vp", w.VP)
	v.SetDefault("planner.weights.resource", w.Resource)
	v.SetDefault("planner.weights.token", w.Token)
	v.SetDefault("planner.weights.slot", w.Slot)
	v.SetDefault("planner.weights.wound", w.Wound)

	v.SetDefault("content.dir", "")
	v.SetDefault("replay.dir", "")
}

// Load reads path and applies environment overrides on top of the defaults.
// With an empty path it looks for threatlanes.yaml in the working directory
// and ./config, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("threatlanes")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite, postgres or none, got %q", c.Database.Driver))
	}
	if c.Database.Driver != "none" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Planner.MaxDepth < 1 || c.Planner.MaxBranches < 1 {
		errs = append(errs, errors.New("planner.max_depth and planner.max_branches must be positive"))
	}
	if c.Rules.MaxTokens < 0 || c.Rules.MaxSlots < 0 || c.Rules.BossRound < 0 {
		errs = append(errs, errors.New("rules must not be negative"))
	}
	return errors.Join(errs...)
}

// GameRules applies the overrides to the default rule numbers.
func (c *Config) GameRules() game.Rules {
	r := game.DefaultRules()
	override := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	override(&r.MaxTokens, c.Rules.MaxTokens)
	override(&r.MaxSlots, c.Rules.MaxSlots)
	override(&r.StartingSlots, c.Rules.StartingSlots)
	override(&r.MaxWeight, c.Rules.MaxWeight)
	override(&r.EnrageSurcharge, c.Rules.EnrageSurcharge)
	override(&r.MassReduction, c.Rules.MassReduction)
	override(&r.AttackTokenValue, c.Rules.AttackTokenValue)
	override(&r.BossTokenValue, c.Rules.BossTokenValue)
	override(&r.MarketRowSize, c.Rules.MarketRowSize)
	override(&r.BossRound, c.Rules.BossRound)
	override(&r.BossRoundLimit, c.Rules.BossRoundLimit)
	override(&r.WoundPenalty, c.Rules.WoundPenalty)
	override(&r.RealignCost, c.Rules.RealignCost)
	override(&r.ConvertMax, c.Rules.ConvertMax)
	return r
}

// Constraints builds the planner bounds.
func (c *Config) Constraints() planner.Constraints {
	return planner.Constraints{
		MaxDepth:    c.Planner.MaxDepth,
		MaxBranches: c.Planner.MaxBranches,
		TopN:        c.Planner.TopN,
		Heuristic:   planner.WeightedHeuristic(c.Planner.Weights),
	}
}
