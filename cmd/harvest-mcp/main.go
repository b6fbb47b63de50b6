package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Empty when the API runs without authentication.
	apiKey := os.Getenv("HARVEST_API_KEY")

	if err := server.ServeStdio(newServer(newClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"harvest",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	startTool := mcp.NewTool("start_batch",
		mcp.WithDescription("Start a scraping batch. Only one batch runs at a time. The browser window may ask a human to solve a CAPTCHA; call confirm_captcha afterwards."),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("'maps' (business listings), 'dns' (domain health audit), 'faq' (People also ask questions) or 'backup' (page archive)"),
			mcp.Enum("maps", "dns", "faq", "backup"),
		),
		mcp.WithString("targets",
			mcp.Required(),
			mcp.Description("Comma-separated search queries, domains, URLs, or a single sitemap URL"),
		),
		mcp.WithString("input",
			mcp.Description("How to read targets: 'query', 'domain', 'urls' or 'sitemap' (default depends on mode)"),
			mcp.Enum("query", "domain", "urls", "sitemap"),
		),
		mcp.WithNumber("max_records",
			mcp.Description("Max listings or questions per target"),
		),
		mcp.WithBoolean("enrich",
			mcp.Description("maps: visit listing websites for emails and VAT ids"),
		),
		mcp.WithBoolean("related",
			mcp.Description("faq: include related searches"),
		),
		mcp.WithBoolean("performance",
			mcp.Description("dns: add a PageSpeed score (needs a server-side key)"),
		),
		mcp.WithBoolean("archive",
			mcp.Description("dns: add Wayback Machine history"),
		),
		mcp.WithString("output_format",
			mcp.Description("Persisted table format: 'csv' (default), 'xlsx' or 'sqlite'"),
			mcp.Enum("csv", "xlsx", "sqlite"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Block until the batch finishes and return its summary"),
		),
	)
	s.AddTool(startTool, c.handleStart)

	s.AddTool(mcp.NewTool("stop_batch",
		mcp.WithDescription("Ask the running batch to stop. Records collected so far are still saved."),
	), c.handleStop)

	s.AddTool(mcp.NewTool("confirm_captcha",
		mcp.WithDescription("Tell a batch suspended on a CAPTCHA that the challenge has been solved in the browser window."),
	), c.handleConfirm)

	s.AddTool(mcp.NewTool("batch_status",
		mcp.WithDescription("Report the state, counters and output file of the current or last batch."),
	), c.handleStatus)

	return s
}
