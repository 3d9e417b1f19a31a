// Command autobrowser-mcp exposes the autobrowser HTTP API as MCP tools over
// stdio, so agent runtimes can drive page behaviors without speaking the
// REST protocol themselves.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// runRequest mirrors the autobrowser API request model.
type runRequest struct {
	URL        string `json:"url"`
	Behavior   string `json:"behavior,omitempty"`
	MaxRunTime int    `json:"max_run_time,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// runResponse mirrors the autobrowser API response model.
type runResponse struct {
	Success  bool     `json:"success"`
	Done     bool     `json:"done"`
	Behavior string   `json:"behavior"`
	Steps    int      `json:"steps"`
	Outlinks []string `json:"outlinks"`
	FinalURL string   `json:"final_url"`
	Snapshot *struct {
		Format  string `json:"format"`
		Content string `json:"content"`
	} `json:"snapshot"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// behaviorsResponse mirrors GET /api/v1/behaviors.
type behaviorsResponse struct {
	Behaviors []string `json:"behaviors"`
}

func main() {
	apiURL := os.Getenv("AUTOBROWSER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("AUTOBROWSER_API_KEY")

	s := server.NewMCPServer(
		"autobrowser",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	runTool := mcp.NewTool("run_behavior",
		mcp.WithDescription("Run a page behavior (auto-scrolling, feed traversal) on a URL in a headless browser, collecting outbound links and optionally a content snapshot of the fully loaded page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to run the behavior on"),
		),
		mcp.WithString("behavior",
			mcp.Description("Behavior name to pin (see list_behaviors). Empty selects by URL with an autoscroll fallback."),
		),
		mcp.WithNumber("max_run_time",
			mcp.Description("Run budget in seconds (default 60, max 600). The run reports partial results when the budget expires."),
		),
		mcp.WithString("snapshot",
			mcp.Description("Capture the completed page as 'html', 'markdown', or 'text'"),
			mcp.Enum("html", "markdown", "text"),
		),
	)
	s.AddTool(runTool, handleRunBehavior(apiURL, apiKey))

	listTool := mcp.NewTool("list_behaviors",
		mcp.WithDescription("List the registered behavior names, including the autoscroll fallback."),
	)
	s.AddTool(listTool, handleListBehaviors(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleRunBehavior(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 620 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := runRequest{
			URL:        url,
			Behavior:   request.GetString("behavior", ""),
			MaxRunTime: request.GetInt("max_run_time", 0),
			Snapshot:   request.GetString("snapshot", ""),
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		respBody, err := doPost(ctx, client, apiURL+"/api/v1/behaviors/run", apiKey, body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}

		var runResp runResponse
		if err := json.Unmarshal(respBody, &runResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !runResp.Success {
			errMsg := "behavior run failed"
			if runResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", runResp.Error.Code, runResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Behavior: %s\nFinal URL: %s\nSteps: %d (done: %v)\n",
			runResp.Behavior, runResp.FinalURL, runResp.Steps, runResp.Done)
		if len(runResp.Outlinks) > 0 {
			fmt.Fprintf(&sb, "\nOutlinks (%d):\n", len(runResp.Outlinks))
			for _, link := range runResp.Outlinks {
				fmt.Fprintf(&sb, "- %s\n", link)
			}
		}
		if runResp.Snapshot != nil {
			fmt.Fprintf(&sb, "\n--- snapshot (%s) ---\n%s", runResp.Snapshot.Format, runResp.Snapshot.Content)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleListBehaviors(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/behaviors", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		setHeaders(req, apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var listResp behaviorsResponse
		if err := json.Unmarshal(respBody, &listResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		return mcp.NewToolResultText(strings.Join(listResp.Behaviors, "\n")), nil
	}
}

func doPost(ctx context.Context, client *http.Client, url, apiKey string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	setHeaders(req, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
}
