package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all swap generator tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerStart(s, client)
	registerStop(s, client)
	registerReset(s, client)
	registerResetUsage(s, client)
	registerForcePhase(s, client)
	registerWallets(s, client)
	registerTrades(s, client)
	registerSessions(s, client)
	registerSessionDetail(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_status",
		gomcp.WithDescription("Get trader status: running state, session, pacing and wave phase, price stats and throttle, trade counters, delivery latency per strategy."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Swap generator unreachable: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_health",
		gomcp.WithDescription("Readiness check for the swap generator, including Solana RPC connectivity."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/ready")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Swap generator unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

func registerStart(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_start",
		gomcp.WithDescription("Start the buy and sell loops. This is a MUTATING operation that sends real transactions unless the service runs in paper mode."),
		gomcp.WithString("pacing",
			gomcp.Description("Interval shaping: flat, wave, organic (default: configured)"),
		),
		gomcp.WithString("buy_strategy",
			gomcp.Description("Buy delivery: standard, fast, urgent, relay (default: configured)"),
		),
		gomcp.WithString("sell_strategy",
			gomcp.Description("Sell delivery: standard, fast, urgent, relay (default: configured)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		payload := startPayload(
			req.GetString("pacing", ""),
			req.GetString("buy_strategy", ""),
			req.GetString("sell_strategy", ""),
		)

		raw, err := client.Post(ctx, "/v1/start", payload)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Start failed: %v", err)), nil
		}
		var resp map[string]string
		json.Unmarshal(raw, &resp)

		lines := []string{section("Trading Started"), kv("Session", resp["sessionId"])}
		for _, k := range []string{"pacing", "buyStrategy", "sellStrategy"} {
			if v, ok := payload[k]; ok {
				lines = append(lines, kv(k, v))
			}
		}
		return gomcp.NewToolResultText(joinLines(lines...)), nil
	})
}

// startPayload builds the /v1/start body from the non-empty overrides.
func startPayload(pacing, buy, sell string) map[string]string {
	payload := map[string]string{}
	if pacing != "" {
		payload["pacing"] = pacing
	}
	if buy != "" {
		payload["buyStrategy"] = buy
	}
	if sell != "" {
		payload["sellStrategy"] = sell
	}
	return payload
}

func registerStop(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_stop",
		gomcp.WithDescription("Stop the trading loops. A trade already being delivered completes. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Post(ctx, "/v1/stop", nil); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Stop failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Trading Stopped"),
			"The session is closed in the journal once the loops exit.",
		)), nil
	})
}

func registerReset(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_reset",
		gomcp.WithDescription("Reset the progressive buy and sell counters so amounts start from the base range again. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Post(ctx, "/v1/reset", nil); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Reset failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Progressive Counters Reset"),
			"Next trades use the base amount range.",
		)), nil
	})
}

func registerForcePhase(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_force_phase",
		gomcp.WithDescription("Force the volume wave into a phase and restart its dwell timer. Requires wave or organic pacing. This is a MUTATING operation."),
		gomcp.WithString("phase",
			gomcp.Required(),
			gomcp.Description("Phase: active, slow, burst or dormant"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		phase, err := req.RequireString("phase")
		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}
		if _, err := client.Post(ctx, "/v1/phase", map[string]string{"phase": phase}); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Force phase failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Wave Phase Forced"),
			kv("Phase", phase),
		)), nil
	})
}

func registerResetUsage(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_reset_usage",
		gomcp.WithDescription("Zero the wallet selection counters used to balance wallet usage. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if _, err := client.Post(ctx, "/v1/reset-usage", nil); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Reset usage failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(section("Wallet Usage Reset")), nil
	})
}

func registerWallets(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_wallets",
		gomcp.WithDescription("Show the wallet pool: usage balance, profile mix and per-wallet buy and sell history."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max wallets to list (default: 25)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/wallets")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Wallets failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatWallets(raw, req.GetInt("limit", 25))), nil
	})
}

func registerTrades(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_trades",
		gomcp.WithDescription("List journaled trades, newest first (paginated)."),
		gomcp.WithString("session",
			gomcp.Description("Session ID to filter by (default: all sessions)"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max trades to return (default: 20, max: 1000)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		q := url.Values{}
		if session := req.GetString("session", ""); session != "" {
			q.Set("session", session)
		}
		q.Set("limit", fmt.Sprint(req.GetInt("limit", 20)))
		q.Set("offset", fmt.Sprint(req.GetInt("offset", 0)))

		raw, err := client.Get(ctx, "/v1/trades?"+q.Encode())
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Trades failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatTrades(raw)), nil
	})
}

func registerSessions(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_sessions",
		gomcp.WithDescription("List trading sessions, newest first (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max sessions to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		path := fmt.Sprintf("/v1/sessions?limit=%d&offset=%d", req.GetInt("limit", 10), req.GetInt("offset", 0))
		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Sessions failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatSessions(raw)), nil
	})
}

func registerSessionDetail(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swapgen_session_detail",
		gomcp.WithDescription("Get one session with its configuration and trade summary."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Session ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		raw, err := client.Get(ctx, "/v1/sessions/"+url.PathEscape(id))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Session detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatSessionDetail(raw)), nil
	})
}
