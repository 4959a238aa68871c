package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/swapgen/internal/trader"
	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// clearEnv unsets every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PRESET", "RPC_URL", "RELAY_URL", "RELAY_API_KEY", "RELAY_TIP_ACCOUNT", "RELAY_TIP_LAMPORTS", "RELAY_RPS",
		"WALLET_DIR", "TARGET_MINT", "LISTEN_ADDR", "DATABASE_PATH", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FILE",
		"PRICE_RISE_THRESHOLD", "ACTIVE_HOURS", "SLOW_HOURS", "PAPER", "BYPASS_HOLD", "AUTO_START",
		"PACING", "BUY_STRATEGY", "SELL_STRATEGY", "AMOUNT_DISTRIBUTION", "MIN_BUY_AMOUNT", "MAX_BUY_AMOUNT",
		"MIN_SELL_PCT", "MAX_SELL_PCT", "BASE_BUY_INTERVAL", "BASE_SELL_INTERVAL", "PROGRESSIVE_FACTOR",
		"MAX_PROGRESSIVE_STEPS", "MIN_HOLD_HOURS", "MAX_HOLD_HOURS", "TARGET_BUY_RATIO", "SLIPPAGE_BPS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_MINT", testMint)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != DefaultRPCURL {
		t.Errorf("RPCURL = %q, want %q", cfg.RPCURL, DefaultRPCURL)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Preset != DefaultPreset {
		t.Errorf("Preset = %q, want %q", cfg.Preset, DefaultPreset)
	}
	if cfg.Trading != trader.DefaultConfig() {
		t.Errorf("Trading = %+v, want defaults", cfg.Trading)
	}
	if cfg.ActiveDuration() != 2*time.Hour || cfg.SlowDuration() != time.Hour {
		t.Errorf("wave durations = %v/%v", cfg.ActiveDuration(), cfg.SlowDuration())
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_MINT", testMint)
	t.Setenv("RPC_URL", "http://rpc.local")
	t.Setenv("PACING", "Organic")
	t.Setenv("BUY_STRATEGY", "relay")
	t.Setenv("RELAY_URL", "http://relay.local")
	t.Setenv("MIN_BUY_AMOUNT", "0.02")
	t.Setenv("MAX_BUY_AMOUNT", "0.04")
	t.Setenv("BASE_BUY_INTERVAL", "45")
	t.Setenv("BASE_SELL_INTERVAL", "2m")
	t.Setenv("ACTIVE_HOURS", "0.5")
	t.Setenv("SLIPPAGE_BPS", "250")
	t.Setenv("PAPER", "true")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := cfg.Trading
	if cfg.RPCURL != "http://rpc.local" {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
	if tr.Pacing != ptypes.PacingOrganic {
		t.Errorf("Pacing = %q, want organic", tr.Pacing)
	}
	if tr.BuyStrategy != ptypes.StrategyRelay {
		t.Errorf("BuyStrategy = %q, want relay", tr.BuyStrategy)
	}
	if tr.MinBuyAmount != 0.02 || tr.MaxBuyAmount != 0.04 {
		t.Errorf("buy range = [%v, %v]", tr.MinBuyAmount, tr.MaxBuyAmount)
	}
	if tr.BuyInterval != 45*time.Second {
		t.Errorf("BuyInterval = %v, want 45s", tr.BuyInterval)
	}
	if tr.SellInterval != 2*time.Minute {
		t.Errorf("SellInterval = %v, want 2m", tr.SellInterval)
	}
	if cfg.ActiveDuration() != 30*time.Minute {
		t.Errorf("ActiveDuration = %v, want 30m", cfg.ActiveDuration())
	}
	if tr.SlippageBps != 250 {
		t.Errorf("SlippageBps = %d, want 250", tr.SlippageBps)
	}
	if !cfg.Paper {
		t.Error("Paper = false, want true")
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_MINT", testMint)
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("PACING", "flat")

	cfg, err := Load([]string{"-listen", ":9100", "-pacing", "wave", "-buy-interval", "5m"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Errorf("ListenAddr = %q, want :9100", cfg.ListenAddr)
	}
	if cfg.Trading.Pacing != ptypes.PacingWave {
		t.Errorf("Pacing = %q, want wave", cfg.Trading.Pacing)
	}
	if cfg.Trading.BuyInterval != 5*time.Minute {
		t.Errorf("BuyInterval = %v, want 5m", cfg.Trading.BuyInterval)
	}
}

func TestLoad_Presets(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		env        string
		wantMinBuy float64
		wantBuyIv  time.Duration
		wantRatio  float64
	}{
		{"stealth via flag", []string{"-preset", "stealth"}, "", 0.5, 20 * time.Minute, 0.7},
		{"conservative via env", nil, "conservative", 0.05, 30 * time.Second, 0.65},
		{"flag beats env", []string{"-preset", "stealth"}, "conservative", 0.5, 20 * time.Minute, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TARGET_MINT", testMint)
			t.Setenv("PRESET", tt.env)

			cfg, err := Load(tt.args)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Trading.MinBuyAmount != tt.wantMinBuy {
				t.Errorf("MinBuyAmount = %v, want %v", cfg.Trading.MinBuyAmount, tt.wantMinBuy)
			}
			if cfg.Trading.BuyInterval != tt.wantBuyIv {
				t.Errorf("BuyInterval = %v, want %v", cfg.Trading.BuyInterval, tt.wantBuyIv)
			}
			if cfg.Trading.TargetBuyRatio != tt.wantRatio {
				t.Errorf("TargetBuyRatio = %v, want %v", cfg.Trading.TargetBuyRatio, tt.wantRatio)
			}
		})
	}
}

func TestLoad_PresetThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_MINT", testMint)
	t.Setenv("MAX_BUY_AMOUNT", "1.5")

	cfg, err := Load([]string{"-preset", "stealth"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.MinBuyAmount != 0.5 || cfg.Trading.MaxBuyAmount != 1.5 {
		t.Errorf("buy range = [%v, %v], want [0.5, 1.5]", cfg.Trading.MinBuyAmount, cfg.Trading.MaxBuyAmount)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want error
	}{
		{"unknown preset", []string{"-preset", "yolo"}, nil, ErrUnknownPreset},
		{"bad strategy", nil, map[string]string{"SELL_STRATEGY": "teleport"}, trader.ErrInvalidConfig},
		{"inverted buy range", []string{"-min-buy", "1", "-max-buy", "0.5"}, nil, trader.ErrInvalidConfig},
		{"unparseable number", nil, map[string]string{"MIN_BUY_AMOUNT": "lots"}, nil},
		{"bad duration", nil, map[string]string{"BASE_BUY_INTERVAL": "soon"}, nil},
		{"missing mint", nil, map[string]string{"TARGET_MINT": ""}, nil},
		{"bad mint", nil, map[string]string{"TARGET_MINT": "not-base58!"}, nil},
		{"relay without url", nil, map[string]string{"BUY_STRATEGY": "relay"}, nil},
		{"paper relay without url", nil, map[string]string{"PAPER": "true", "SELL_STRATEGY": "relay"}, nil},
		{"unknown flag", []string{"-nope"}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TARGET_MINT", testMint)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMint_PaperDefault(t *testing.T) {
	cfg := Default()
	cfg.Paper = true
	mint, err := cfg.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if mint.String() != DefaultPaperMint {
		t.Errorf("Mint = %s, want %s", mint, DefaultPaperMint)
	}

	cfg.Paper = false
	if _, err := cfg.Mint(); err == nil {
		t.Error("Mint without paper mode succeeded, want error")
	}
}

func TestValidate_PaperSkipsRPC(t *testing.T) {
	cfg := Default()
	cfg.TargetMint = testMint
	cfg.RPCURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate without RPC succeeded, want error")
	}
	cfg.Paper = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate in paper mode: %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SWAPGEN_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SWAPGEN_TEST_KEY", "")
	os.Unsetenv("SWAPGEN_TEST_KEY")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("SWAPGEN_TEST_KEY"); got != "from-file" {
		t.Errorf("SWAPGEN_TEST_KEY = %q, want from-file", got)
	}
}
