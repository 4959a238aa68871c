// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"github.com/gateway-fm/swapgen/internal/delivery"
	"github.com/gateway-fm/swapgen/internal/trader"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// ErrUnknownPreset is returned for a preset name not in Presets.
var ErrUnknownPreset = errors.New("unknown preset")

// Config holds swap generator configuration.
type Config struct {
	RPCURL           string
	RelayURL         string // empty disables the relay strategy
	RelayAPIKey      string
	RelayTipAccount  string
	RelayTipLamports uint64
	RelayRPS         float64 // outbound relay requests per second, 0 = unlimited

	WalletDir          string
	TargetMint         string
	ListenAddr         string
	DatabasePath       string // empty disables the journal
	CORSAllowedOrigins string
	LogLevel           string
	LogFile            string // rotating log file in addition to stdout

	PriceRiseThreshold float64 // fractional rise that activates throttling
	ActiveHours        float64 // wave active phase length
	SlowHours          float64 // wave slow phase length

	// Paper signs transactions but never broadcasts them.
	Paper bool
	// BypassHold sells from the default wallet without hold-time checks.
	BypassHold bool
	// AutoStart starts trading at boot instead of waiting for /v1/start.
	AutoStart bool
	Preset    string

	Trading ptypes.TraderConfig
}

// Defaults
const (
	DefaultRPCURL             = "https://api.devnet.solana.com"
	DefaultWalletDir          = "./wallets"
	DefaultListenAddr         = ":3002"
	DefaultDatabasePath       = "./data/swapgen.db"
	DefaultCORSAllowedOrigins = "*"
	DefaultLogLevel           = "info"
	DefaultPriceRiseThreshold = 0.15
	DefaultActiveHours        = 2
	DefaultSlowHours          = 1
	DefaultPreset             = "default"
	// DefaultPaperMint is used as the target when paper mode runs without one.
	DefaultPaperMint = "So11111111111111111111111111111111111111112"
)

// Presets are named starting points for the trading parameters.
var Presets = map[string]func() ptypes.TraderConfig{
	"default": trader.DefaultConfig,
	"stealth": func() ptypes.TraderConfig {
		c := trader.DefaultConfig()
		c.MinBuyAmount, c.MaxBuyAmount = 0.5, 0.9
		c.BuyInterval, c.SellInterval = 20*time.Minute, 30*time.Minute
		c.TargetBuyRatio = 0.7
		return c
	},
	"conservative": func() ptypes.TraderConfig {
		c := trader.DefaultConfig()
		c.MinBuyAmount, c.MaxBuyAmount = 0.05, 0.3
		c.BuyInterval, c.SellInterval = 30*time.Second, 45*time.Second
		c.TargetBuyRatio = 0.65
		return c
	},
}

// Default returns the configuration before env and flags are applied.
func Default() *Config {
	return &Config{
		RPCURL:             DefaultRPCURL,
		RelayTipAccount:    delivery.DefaultTipAccount.String(),
		RelayTipLamports:   delivery.DefaultTipLamports,
		WalletDir:          DefaultWalletDir,
		ListenAddr:         DefaultListenAddr,
		DatabasePath:       DefaultDatabasePath,
		CORSAllowedOrigins: DefaultCORSAllowedOrigins,
		LogLevel:           DefaultLogLevel,
		PriceRiseThreshold: DefaultPriceRiseThreshold,
		ActiveHours:        DefaultActiveHours,
		SlowHours:          DefaultSlowHours,
		Preset:             DefaultPreset,
		Trading:            trader.DefaultConfig(),
	}
}

// LoadEnvFile loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and command-line
// flags. Precedence: flags, then environment, then the preset, then defaults.
func Load(args []string) (*Config, error) {
	// The preset must be known before env and flags are layered on top, so
	// the flags are parsed once to find it and again onto the real config.
	scratch := Default()
	if v := os.Getenv("PRESET"); v != "" {
		scratch.Preset = v
	}
	if err := newFlagSet(scratch).Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	preset, ok := Presets[scratch.Preset]
	if !ok {
		return nil, fmt.Errorf("%w: %s (valid: default, stealth, conservative)", ErrUnknownPreset, scratch.Preset)
	}
	cfg.Preset = scratch.Preset
	cfg.Trading = preset()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := newFlagSet(cfg).Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	f := flag.NewFlagSet("swapgen", flag.ContinueOnError)
	t := &cfg.Trading

	f.StringVar(&cfg.Preset, "preset", cfg.Preset, "Trading preset: default, stealth, conservative")
	f.StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL, "Solana RPC URL")
	f.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "Relay submission URL (empty disables relay delivery)")
	f.StringVar(&cfg.WalletDir, "wallets", cfg.WalletDir, "Directory of wallet key files")
	f.StringVar(&cfg.TargetMint, "mint", cfg.TargetMint, "Target token mint")
	f.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	f.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite journal path (empty disables)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Rotating log file path")
	f.BoolVar(&cfg.Paper, "paper", cfg.Paper, "Sign but never broadcast transactions")
	f.BoolVar(&cfg.BypassHold, "bypass-hold", cfg.BypassHold, "Sell from the default wallet without hold checks")
	f.BoolVar(&cfg.AutoStart, "autostart", cfg.AutoStart, "Start trading at boot")
	f.Float64Var(&cfg.PriceRiseThreshold, "price-rise-threshold", cfg.PriceRiseThreshold, "Fractional price rise that activates throttling")
	f.Float64Var(&cfg.ActiveHours, "active-hours", cfg.ActiveHours, "Wave active phase length in hours")
	f.Float64Var(&cfg.SlowHours, "slow-hours", cfg.SlowHours, "Wave slow phase length in hours")

	f.Func("pacing", "Pacing: flat, wave, organic (default "+string(t.Pacing)+")", func(s string) error {
		t.Pacing = ptypes.Pacing(s)
		return nil
	})
	f.Func("buy-strategy", "Buy delivery strategy (default "+string(t.BuyStrategy)+")", func(s string) error {
		t.BuyStrategy = ptypes.Strategy(s)
		return nil
	})
	f.Func("sell-strategy", "Sell delivery strategy (default "+string(t.SellStrategy)+")", func(s string) error {
		t.SellStrategy = ptypes.Strategy(s)
		return nil
	})
	f.Float64Var(&t.MinBuyAmount, "min-buy", t.MinBuyAmount, "Minimum buy amount in SOL")
	f.Float64Var(&t.MaxBuyAmount, "max-buy", t.MaxBuyAmount, "Maximum buy amount in SOL")
	f.DurationVar(&t.BuyInterval, "buy-interval", t.BuyInterval, "Base buy interval")
	f.DurationVar(&t.SellInterval, "sell-interval", t.SellInterval, "Base sell interval")
	return f
}

// applyEnv overlays environment variables onto c.
func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("RPC_URL", &c.RPCURL)
	str("RELAY_URL", &c.RelayURL)
	str("RELAY_API_KEY", &c.RelayAPIKey)
	str("RELAY_TIP_ACCOUNT", &c.RelayTipAccount)
	str("WALLET_DIR", &c.WalletDir)
	str("TARGET_MINT", &c.TargetMint)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("DATABASE_PATH", &c.DatabasePath)
	str("CORS_ALLOWED_ORIGINS", &c.CORSAllowedOrigins)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)

	t := &c.Trading
	var errs []error
	parse := func(key string, set func(string) error) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if err := set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}
	float := func(dst *float64) func(string) error {
		return func(s string) (err error) {
			*dst, err = strconv.ParseFloat(s, 64)
			return err
		}
	}
	integer := func(dst *int) func(string) error {
		return func(s string) (err error) {
			*dst, err = strconv.Atoi(s)
			return err
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(s string) (err error) {
			*dst, err = strconv.ParseBool(s)
			return err
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(s string) (err error) {
			*dst, err = parseDuration(s)
			return err
		}
	}

	parse("RELAY_TIP_LAMPORTS", func(s string) (err error) {
		c.RelayTipLamports, err = strconv.ParseUint(s, 10, 64)
		return err
	})
	parse("RELAY_RPS", float(&c.RelayRPS))
	parse("PRICE_RISE_THRESHOLD", float(&c.PriceRiseThreshold))
	parse("ACTIVE_HOURS", float(&c.ActiveHours))
	parse("SLOW_HOURS", float(&c.SlowHours))
	parse("PAPER", boolean(&c.Paper))
	parse("BYPASS_HOLD", boolean(&c.BypassHold))
	parse("AUTO_START", boolean(&c.AutoStart))

	parse("PACING", func(s string) error { t.Pacing = ptypes.Pacing(strings.ToLower(s)); return nil })
	parse("BUY_STRATEGY", func(s string) error { t.BuyStrategy = ptypes.Strategy(strings.ToLower(s)); return nil })
	parse("SELL_STRATEGY", func(s string) error { t.SellStrategy = ptypes.Strategy(strings.ToLower(s)); return nil })
	parse("AMOUNT_DISTRIBUTION", func(s string) error {
		t.AmountDistribution = ptypes.AmountDistribution(strings.ToLower(s))
		return nil
	})
	parse("MIN_BUY_AMOUNT", float(&t.MinBuyAmount))
	parse("MAX_BUY_AMOUNT", float(&t.MaxBuyAmount))
	parse("MIN_SELL_PCT", float(&t.MinSellPercent))
	parse("MAX_SELL_PCT", float(&t.MaxSellPercent))
	parse("BASE_BUY_INTERVAL", duration(&t.BuyInterval))
	parse("BASE_SELL_INTERVAL", duration(&t.SellInterval))
	parse("PROGRESSIVE_FACTOR", float(&t.ProgressiveFactor))
	parse("MAX_PROGRESSIVE_STEPS", integer(&t.MaxProgressiveSteps))
	parse("MIN_HOLD_HOURS", integer(&t.MinHoldHours))
	parse("MAX_HOLD_HOURS", integer(&t.MaxHoldHours))
	parse("TARGET_BUY_RATIO", float(&t.TargetBuyRatio))
	parse("SLIPPAGE_BPS", func(s string) error {
		v, err := strconv.ParseUint(s, 10, 16)
		t.SlippageBps = uint16(v)
		return err
	})

	return errors.Join(errs...)
}

// parseDuration accepts a Go duration ("90s", "20m") or whole seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// ActiveDuration is the wave active phase length.
func (c *Config) ActiveDuration() time.Duration {
	return time.Duration(c.ActiveHours * float64(time.Hour))
}

// SlowDuration is the wave slow phase length.
func (c *Config) SlowDuration() time.Duration {
	return time.Duration(c.SlowHours * float64(time.Hour))
}

// Mint returns the target mint, defaulting to wrapped SOL in paper mode.
func (c *Config) Mint() (solana.PublicKey, error) {
	mint := c.TargetMint
	if mint == "" && c.Paper {
		mint = DefaultPaperMint
	}
	if mint == "" {
		return solana.PublicKey{}, errors.New("target mint is required")
	}
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid target mint %q: %w", mint, err)
	}
	return pk, nil
}

// TipAccount returns the relay tip account.
func (c *Config) TipAccount() (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(c.RelayTipAccount)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid relay tip account %q: %w", c.RelayTipAccount, err)
	}
	return pk, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Paper && c.RPCURL == "" {
		return errors.New("RPC URL is required unless paper mode is on")
	}
	if c.WalletDir == "" {
		return errors.New("wallet directory is required")
	}
	if _, err := c.Mint(); err != nil {
		return err
	}
	if c.RelayURL != "" {
		if _, err := c.TipAccount(); err != nil {
			return err
		}
	}
	if c.PriceRiseThreshold <= 0 {
		return fmt.Errorf("price rise threshold must be positive, got %v", c.PriceRiseThreshold)
	}
	if c.ActiveHours <= 0 || c.SlowHours <= 0 {
		return fmt.Errorf("wave phase hours must be positive, got active=%v slow=%v", c.ActiveHours, c.SlowHours)
	}
	if c.RelayRPS < 0 {
		return fmt.Errorf("relay rps cannot be negative")
	}
	usesRelay := c.Trading.BuyStrategy == ptypes.StrategyRelay || c.Trading.SellStrategy == ptypes.StrategyRelay
	if usesRelay && c.RelayURL == "" {
		return errors.New("relay strategy selected but RELAY_URL is not set")
	}
	return trader.Validate(c.Trading)
}
