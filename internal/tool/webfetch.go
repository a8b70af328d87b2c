package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aidev/agentcore/pkg/types"
)

const webfetchDescription = `Fetches content from a URL and returns it as text or raw HTML.

Usage notes:
- The URL must start with http:// or https://
- This tool is read-only and never modifies files
- Responses over 5MB are rejected
- format "text" strips HTML tags; format "html" returns the raw body`

const webfetchArgSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "The URL to fetch content from"},
		"format": {"type": "string", "enum": ["text", "html"], "description": "text or html"},
		"timeout": {"type": "integer", "description": "Optional timeout in seconds (max 120)"}
	},
	"required": ["url", "format"]
}`

const (
	maxFetchResponseSize = 5 * 1024 * 1024
	defaultFetchTimeout  = 30 * time.Second
	maxFetchTimeout      = 120 * time.Second
)

type webfetchArgs struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"`
}

// NewWebFetchDescriptor builds the WebFetch tool. Markdown conversion
// (the teacher uses html-to-markdown + goquery for that) has no home in
// this spec's scope — see DESIGN.md "Dropped / not wired" — so this
// only offers raw HTML and a stdlib regexp-based tag strip for "text".
func NewWebFetchDescriptor() types.ToolDescriptor {
	client := &http.Client{Timeout: defaultFetchTimeout}
	return types.ToolDescriptor{
		Name:           "WebFetch",
		Description:    webfetchDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(webfetchArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args webfetchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("webfetch: invalid args: %w", err)
			}
			if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
				return nil, fmt.Errorf("webfetch: url must start with http:// or https://")
			}
			if args.Format != "text" && args.Format != "html" {
				return nil, fmt.Errorf("webfetch: format must be 'text' or 'html'")
			}

			timeout := defaultFetchTimeout
			if args.Timeout > 0 {
				timeout = time.Duration(args.Timeout) * time.Second
				if timeout > maxFetchTimeout {
					timeout = maxFetchTimeout
				}
			}

			body, contentType, err := fetch(ctx.Context, client, args.URL, timeout)
			if err != nil {
				return nil, fmt.Errorf("webfetch: %w", err)
			}

			content := body
			if args.Format == "text" {
				content = stripHTML(body)
			}

			return &types.ToolResult{
				Content:  content,
				Artifact: map[string]any{"url": args.URL, "content_type": contentType},
			}, nil
		},
	}
}

func fetch(ctx context.Context, client *http.Client, url string, timeout time.Duration) (body, contentType string, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "agentcore-webfetch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxFetchResponseSize {
		return "", "", fmt.Errorf("response exceeds 5MB limit")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchResponseSize+1))
	if err != nil {
		return "", "", err
	}
	if len(data) > maxFetchResponseSize {
		return "", "", fmt.Errorf("response exceeds 5MB limit")
	}
	return string(data), resp.Header.Get("Content-Type"), nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`[ \t]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

func stripHTML(html string) string {
	text := scriptStyleRe.ReplaceAllString(html, "")
	text = tagRe.ReplaceAllString(text, "\n")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
