package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxMarkupChars  = 300000
	truncatedMarker = "... [TRUNCATED DUE TO SIZE]"
)

// RenderPage fetches a task page and extracts the absolute image URLs found
// in it. Failures degrade to a structured error entry so the model can react
// instead of the chain crashing.
type RenderPage struct {
	client *http.Client
}

func NewRenderPage(client *http.Client) *RenderPage {
	if client == nil {
		client = http.DefaultClient
	}
	return &RenderPage{client: client}
}

func (t *RenderPage) Name() string { return "get_rendered_html" }

func (t *RenderPage) Description() string {
	return "Fetch a web page and return its markup together with the absolute image URLs found in it."
}

func (t *RenderPage) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page URL to fetch",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

func (t *RenderPage) Cacheable() bool { return true }

func (t *RenderPage) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	pageURL, _ := args["url"].(string)
	if strings.TrimSpace(pageURL) == "" {
		return map[string]any{"error": "url is required"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("error fetching page: %v", err)}, nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("error fetching page: %v", err)}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return map[string]any{"error": fmt.Sprintf("error fetching page: status %d", resp.StatusCode)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("error reading page: %v", err)}, nil
	}

	markup := string(body)
	images := imageURLs(markup, pageURL)
	if len(markup) > maxMarkupChars {
		markup = markup[:maxMarkupChars] + truncatedMarker
	}

	return map[string]any{
		"html":   markup,
		"images": images,
		"url":    pageURL,
	}, nil
}

// imageURLs collects img src attributes resolved against the page URL.
func imageURLs(markup, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	images := []string{}
	node, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return images
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key != "src" || strings.TrimSpace(attr.Val) == "" {
					continue
				}
				src := attr.Val
				if base != nil {
					if ref, err := url.Parse(src); err == nil {
						src = base.ResolveReference(ref).String()
					}
				}
				images = append(images, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return images
}
