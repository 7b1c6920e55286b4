package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

var searchClient = &http.Client{Timeout: 30 * time.Second}

// WebSearch implements the "web search" tool: a numbered title/URL/
// description block backed by the Brave Search API, gated on an
// operator-configured key (§4.2).
type WebSearch struct {
	APIKey string
}

func (WebSearch) Name() string        { return "web_search" }
func (WebSearch) Description() string { return "Search the web, returning a numbered results block." }
func (WebSearch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer", "maximum": 10},
		},
		"required": []any{"query"},
	}
}
func (WebSearch) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (WebSearch) Modes() []models.AgentMode            { return nil }
func (WebSearch) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type braveWebResult struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (s WebSearch) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Query, "query"); bad {
		return out
	}
	if s.APIKey == "" {
		return tool.Error("web_search requires an operator-configured API key")
	}
	count := clampInt(in.Count, 5, 10)

	searchURL := "https://api.search.brave.com/res/v1/web/search"
	q := url.Values{}
	q.Set("q", in.Query)
	q.Set("count", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return tool.Errorf("build request: %s", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	resp, err := searchClient.Do(req)
	if err != nil {
		return tool.Errorf("search request failed: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tool.Errorf("read response: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		return tool.Errorf("search backend returned HTTP %d", resp.StatusCode)
	}

	var parsed braveWebResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tool.Errorf("parse search response: %s", err)
	}

	results := parsed.Web.Results
	if len(results) > count {
		results = results[:count]
	}
	if len(results) == 0 {
		return tool.Text("(no results)")
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Description)
	}
	return tool.Text(b.String())
}
