package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// formatNumber adds comma separators to integers.
func formatNumber(n any) string {
	var s string
	switch v := n.(type) {
	case float64:
		if v == float64(int64(v)) {
			s = fmt.Sprintf("%d", int64(v))
		} else {
			return fmt.Sprintf("%.1f", v)
		}
	case int64:
		s = fmt.Sprintf("%d", v)
	case uint64:
		s = fmt.Sprintf("%d", v)
	case int:
		s = fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", n)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		result.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

func formatSOL(v float64) string {
	return fmt.Sprintf("%.6f SOL", v)
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.10g", v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// shortKey abbreviates a base58 key or signature.
func shortKey(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

func formatStatus(raw json.RawMessage) string {
	var st ptypes.StatusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	lines := joinLines(
		section("Trader Status"),
		kv("Status", st.Status),
		kv("Session", st.SessionID),
		kv("Started", formatTime(st.StartedAt)),
		kv("Mint", st.Mint),
		kv("Pacing", st.Config.Pacing),
		kv("Buy / Sell", fmt.Sprintf("%s / %s", st.Config.BuyStrategy, st.Config.SellStrategy)),
		kv("Wallets", st.Wallets),
		kv("Trades Sent", formatNumber(st.TradesSent)),
		kv("Trades Failed", formatNumber(st.TradesFail)),
		kv("Progressive", fmt.Sprintf("buys=%d sells=%d", st.Progressive.Buys, st.Progressive.Sells)),
	)

	if st.Wave != nil {
		lines += "\n\n" + joinLines(
			section("Volume Wave"),
			kv("Phase", st.Wave.Phase),
			kv("In Phase", st.Wave.InPhase.Round(time.Second)),
			kv("Remaining", st.Wave.Remaining.Round(time.Second)),
			kv("Frequency x", fmt.Sprintf("%.2f", st.Wave.FrequencyMultiplier)),
			kv("Amount x", fmt.Sprintf("%.2f", st.Wave.AmountMultiplier)),
		)
	}

	throttled := "no"
	if st.Price.Throttled {
		throttled = "YES"
	}
	lines += "\n\n" + joinLines(
		section("Price"),
		kv("Current", formatPrice(st.Price.Current)),
		kv("Range", fmt.Sprintf("%s .. %s", formatPrice(st.Price.Min), formatPrice(st.Price.Max))),
		kv("Volatility", fmt.Sprintf("%.4f", st.Price.Volatility)),
		kv("Trend", st.Price.Trend),
		kv("Points", st.Price.Points),
		kv("Throttled", throttled),
	)

	if len(st.Delivery) > 0 {
		strategies := make([]string, 0, len(st.Delivery))
		for s := range st.Delivery {
			strategies = append(strategies, string(s))
		}
		sort.Strings(strategies)

		lines += "\n\n" + section("Delivery Latency")
		for _, s := range strategies {
			lat := st.Delivery[ptypes.Strategy(s)]
			if lat == nil {
				continue
			}
			lines += "\n" + kv(s, fmt.Sprintf("n=%d p50=%s p90=%s p99=%s max=%s",
				lat.Count, formatMs(lat.P50), formatMs(lat.P90), formatMs(lat.P99), formatMs(lat.Max)))
		}
	}

	return lines
}

func formatHealth(raw json.RawMessage) string {
	var m struct {
		Ready  bool `json:"ready"`
		Checks []struct {
			Name      string `json:"name"`
			Status    string `json:"status"`
			LatencyMs int64  `json:"latency_ms"`
			Error     string `json:"error"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	state := "READY"
	if !m.Ready {
		state = "NOT READY"
	}
	lines := section("Swap Generator Health: " + state)
	for _, c := range m.Checks {
		line := fmt.Sprintf("  %-15s %s (%dms)", c.Name, c.Status, c.LatencyMs)
		if c.Error != "" {
			line += " - " + c.Error
		}
		lines += "\n" + line
	}
	return lines
}

func formatWallets(raw json.RawMessage, limit int) string {
	var w ptypes.WalletsResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Sprintf("Error parsing wallets: %v", err)
	}

	lines := joinLines(
		section("Wallet Pool"),
		kv("Wallets", w.Usage.Wallets),
		kv("Usage (min/avg/max)", fmt.Sprintf("%d / %.1f / %d", w.Usage.MinUsage, w.Usage.AvgUsage, w.Usage.MaxUsage)),
		kv("Total Buys", formatNumber(w.Usage.TotalBuys)),
		kv("Total Sells", formatNumber(w.Usage.TotalSells)),
	)

	if len(w.Profiles) > 0 {
		names := make([]string, 0, len(w.Profiles))
		for p := range w.Profiles {
			names = append(names, p)
		}
		sort.Strings(names)
		lines += "\n\n" + section("Profiles")
		for _, p := range names {
			lines += "\n" + kv(p, w.Profiles[p])
		}
	}

	if len(w.Wallets) > 0 {
		lines += "\n\n" + section("Wallets")
		for i, info := range w.Wallets {
			if i >= limit {
				lines += fmt.Sprintf("\n... and %d more", len(w.Wallets)-limit)
				break
			}
			lines += fmt.Sprintf("\n  %-14s %-17s usage=%-4d buys=%-4d sells=%-4d last buy %s",
				shortKey(info.PublicKey), info.Profile, info.Usage, info.TotalBuys, info.TotalSells, formatTime(info.LastBuy))
		}
	}
	return lines
}

func formatTrades(raw json.RawMessage) string {
	var r ptypes.TradesResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Sprintf("Error parsing trades: %v", err)
	}

	lines := joinLines(
		section("Trades"),
		kv("Total", formatNumber(r.Total)),
		"",
	)
	if len(r.Trades) == 0 {
		return lines + "\nNo trades found."
	}

	for _, ev := range r.Trades {
		amount := formatSOL(ev.Amount)
		if ev.AmountKind == "pct" {
			amount = fmt.Sprintf("%.1f%%", ev.Amount*100)
		}
		line := fmt.Sprintf("\n  %s  %-4s %-8s %-14s %-7s via %-8s %dms",
			ev.Time.UTC().Format("15:04:05"), ev.Side, ev.Status, amount, shortKey(ev.Wallet), ev.Strategy, ev.LatencyMs)
		if len(ev.Signatures) > 0 {
			line += "  " + shortKey(ev.Signatures[0])
		}
		if ev.Error != "" {
			line += "  - " + ev.Error
		}
		lines += line
	}
	return lines
}

func formatSessions(raw json.RawMessage) string {
	var sessions []ptypes.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return fmt.Sprintf("Error parsing sessions: %v", err)
	}
	if len(sessions) == 0 {
		return section("Sessions") + "\nNo sessions recorded."
	}

	lines := section("Sessions")
	for _, s := range sessions {
		lines += fmt.Sprintf("\n### %s\n", s.ID)
		lines += joinLines(
			kv("Status", s.Status),
			kv("Pacing", s.Pacing),
			kv("Started", formatTime(&s.StartedAt)),
			kv("Stopped", formatTime(s.StoppedAt)),
		)
	}
	return lines
}

func formatSessionDetail(raw json.RawMessage) string {
	var d struct {
		Session ptypes.Session         `json:"session"`
		Summary *ptypes.SessionSummary `json:"summary"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Sprintf("Error parsing session: %v", err)
	}

	s, c := d.Session, d.Session.Config
	lines := joinLines(
		section("Session: "+s.ID),
		kv("Status", s.Status),
		kv("Mint", s.Mint),
		kv("Started", formatTime(&s.StartedAt)),
		kv("Stopped", formatTime(s.StoppedAt)),
		kv("Pacing", s.Pacing),
		kv("Buy Range", fmt.Sprintf("%s .. %s", formatSOL(c.MinBuyAmount), formatSOL(c.MaxBuyAmount))),
		kv("Sell Range", fmt.Sprintf("%.0f%% .. %.0f%%", c.MinSellPercent*100, c.MaxSellPercent*100)),
		kv("Intervals", fmt.Sprintf("buy %s / sell %s", c.BuyInterval, c.SellInterval)),
		kv("Strategies", fmt.Sprintf("%s / %s", c.BuyStrategy, c.SellStrategy)),
	)

	if sum := d.Summary; sum != nil {
		lines += "\n\n" + joinLines(
			section("Summary"),
			kv("Buys", formatNumber(sum.Buys)),
			kv("Sells", formatNumber(sum.Sells)),
			kv("Failed", formatNumber(sum.Failed)),
			kv("Buy Volume", formatSOL(sum.BuyVolume)),
			kv("Avg Latency", formatMs(sum.AvgLatency)),
		)
	}
	return lines
}
