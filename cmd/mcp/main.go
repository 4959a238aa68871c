// Swap generator MCP server.
// Proxies the swapgen control API as MCP tools over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/swapgen/internal/mcp"
)

const defaultBaseURL = "http://localhost:3002"

func main() {
	baseURL := os.Getenv("SWAPGEN_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	s := server.NewMCPServer(
		"swapgen",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	mcptools.RegisterTools(s, mcptools.NewClient(baseURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "mcp: serve %s: %v\n", baseURL, err)
		os.Exit(1)
	}
}
