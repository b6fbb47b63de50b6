package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/harvest/models"
)

// client talks to a running harvest API.
type client struct {
	apiURL       string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

func newClient(apiURL, apiKey string) *client {
	return &client{
		apiURL:       strings.TrimRight(apiURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
	}
}

// do sends a request to the harvest API and returns the status and body.
func (c *client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, b, nil
}

func (c *client) status(ctx context.Context) (models.BatchStatusResponse, error) {
	var st models.BatchStatusResponse
	_, body, err := c.do(ctx, http.MethodGet, "/api/v1/batches/current", nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("parse status: %w", err)
	}
	return st, nil
}

// pollCompletion polls the current batch until it leaves the running states
// or ctx is cancelled.
func (c *client) pollCompletion(ctx context.Context) (models.BatchStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.BatchStatusResponse{}, ctx.Err()
		case <-ticker.C:
			st, err := c.status(ctx)
			if err != nil {
				return st, err
			}
			if st.State != "running" && st.State != "waiting_captcha" {
				return st, nil
			}
		}
	}
}

func (c *client) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := request.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError("mode is required"), nil
	}
	targets, err := request.RequireString("targets")
	if err != nil {
		return mcp.NewToolResultError("targets is required"), nil
	}

	req := models.StartRequest{
		Mode:    mode,
		Targets: targets,
		Input:   request.GetString("input", ""),
		Options: models.StartOptions{
			MaxRecords:   request.GetInt("max_records", 0),
			Enrich:       request.GetBool("enrich", false),
			Related:      request.GetBool("related", false),
			Performance:  request.GetBool("performance", false),
			Archive:      request.GetBool("archive", false),
			OutputFormat: request.GetString("output_format", ""),
		},
	}

	_, body, err := c.do(ctx, http.MethodPost, "/api/v1/batches", req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var started models.StartResponse
	if err := json.Unmarshal(body, &started); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse start response: %v", err)), nil
	}
	if !started.Success {
		msg := "batch could not start"
		if started.Error != nil {
			msg = fmt.Sprintf("[%s] %s", started.Error.Code, started.Error.Message)
		}
		return mcp.NewToolResultError(msg), nil
	}

	if !request.GetBool("wait", false) {
		return mcp.NewToolResultText(fmt.Sprintf("Batch %s started in %s mode. Use batch_status to follow it.", started.BatchID, mode)), nil
	}

	st, err := c.pollCompletion(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling batch failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatStatus(st)), nil
}

func (c *client) handleStop(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.control(ctx, "/api/v1/stop")
}

func (c *client) handleConfirm(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.control(ctx, "/api/v1/captcha/continue")
}

func (c *client) control(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	code, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var resp models.ControlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response (HTTP %d): %v", code, err)), nil
	}
	if !resp.Success {
		return mcp.NewToolResultError(resp.Message), nil
	}
	return mcp.NewToolResultText(resp.Message), nil
}

func (c *client) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := c.status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStatus(st)), nil
}

func formatStatus(st models.BatchStatusResponse) string {
	if st.State == "idle" {
		return "No batch has run yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s (%s): %s\n", st.BatchID, st.Mode, st.State)
	fmt.Fprintf(&b, "Targets: %d  Records: %d  Duplicates dropped: %d  Errors: %d\n",
		st.Targets, st.Records, st.Duplicates, st.Errors)
	if st.CaptchaPending {
		b.WriteString("Waiting for a CAPTCHA to be solved in the browser window, then call confirm_captcha.\n")
	}
	if st.OutputPath != "" {
		fmt.Fprintf(&b, "Output: %s\n", st.OutputPath)
	}
	return b.String()
}
