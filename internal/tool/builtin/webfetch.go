package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// DefaultFetchMaxChars is the default truncation ceiling for web_fetch
// (§4.2).
const DefaultFetchMaxChars = 50_000

var fetchClient = &http.Client{Timeout: 15 * time.Second}

// WebFetch implements the "web fetch" tool: fetches a URL and renders its
// body as plain text (HTML stripped to text, JSON pretty-printed), guarding
// against SSRF against private/reserved addresses.
type WebFetch struct{}

func (WebFetch) Name() string        { return "web_fetch" }
func (WebFetch) Description() string { return "Fetch a URL and return its content as plain text." }
func (WebFetch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":       map[string]any{"type": "string"},
			"max_chars": map[string]any{"type": "integer"},
		},
		"required": []any{"url"},
	}
}
func (WebFetch) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (WebFetch) Modes() []models.AgentMode            { return nil }
func (WebFetch) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

func (WebFetch) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.URL, "url"); bad {
		return out
	}
	limit := in.MaxChars
	if limit <= 0 {
		limit = DefaultFetchMaxChars
	}

	if err := validateFetchURL(in.URL); err != nil {
		return tool.Errorf("url validation failed: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return tool.Errorf("build request: %s", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SvenAgent/1.0)")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return tool.Errorf("fetch %s: %s", in.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tool.Errorf("fetch %s: HTTP %d", in.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return tool.Errorf("read body: %s", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var rendered string
	switch {
	case strings.Contains(contentType, "application/json"):
		rendered = prettyJSON(body)
	case strings.Contains(contentType, "text/html"):
		rendered = htmlToText(string(body))
	default:
		rendered = string(body)
	}

	if len(rendered) > limit {
		rendered = rendered[:limit] + fmt.Sprintf("\n[truncated at %d characters]", limit)
	}
	return tool.Text(rendered)
}

func prettyJSON(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(pretty)
}

var (
	fetchTagStrip  = regexp.MustCompile(`(?is)<(script|style|noscript|svg)[^>]*>.*?</\x01>`)
	fetchTagAny    = regexp.MustCompile(`(?s)<[^>]+>`)
	fetchWhiteLine = regexp.MustCompile(`\n{3,}`)
)

func htmlToText(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "svg"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}
	html = strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"</p>", "\n\n", "</div>", "\n", "</li>", "\n",
	).Replace(html)
	text := fetchTagAny.ReplaceAllString(html, "")
	text = htmlUnescape(text)
	text = fetchWhiteLine.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func htmlUnescape(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
	return replacer.Replace(s)
}

// validateFetchURL rejects schemes other than http/https and hostnames that
// resolve to loopback, link-local, private, or cloud-metadata addresses.
func validateFetchURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	metadataIP := net.ParseIP("169.254.169.254")
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
			ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() || ip.Equal(metadataIP) {
			return fmt.Errorf("URL resolves to a private or reserved address")
		}
	}
	return nil
}
