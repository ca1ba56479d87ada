package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// DefaultNewsBaseURL is the NewsAPI endpoint prefix.
const DefaultNewsBaseURL = "https://newsapi.org/v2"

// News article count bounds. Requests above the cap are clamped before the
// call, never rejected.
const (
	DefaultNewsCount = 5
	MaxNewsCount     = 10
)

// NewsToolOptions configures the news search tool.
type NewsToolOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewsTool searches news articles via the NewsAPI "everything" endpoint and
// returns a JSON list of {title, description, url, publishedAt}.
type NewsTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsTool constructs a NewsTool. The HTTP client and base URL are
// injectable for tests.
func NewNewsTool(apiKey string, optFns ...func(o *NewsToolOptions)) *NewsTool {
	opts := NewsToolOptions{
		BaseURL:    DefaultNewsBaseURL,
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &NewsTool{apiKey: apiKey, baseURL: opts.BaseURL, client: opts.HTTPClient}
}

// Name returns the tool identifier exposed to models.
func (t *NewsTool) Name() string { return "fetch_news" }

// Description is shown to the model to guide tool selection.
func (t *NewsTool) Description() string {
	return "Fetch news articles matching a search query from the News API."
}

// Parameters returns the argument schema. Count is optional and clamped to
// MaxNewsCount.
func (t *NewsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query for news articles",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Number of articles to fetch (max %d)", MaxNewsCount),
			},
		},
		"required": []any{"query"},
	}
}

// Call performs the search. The count argument defaults to DefaultNewsCount
// and is hard-clamped to MaxNewsCount before the request goes out.
func (t *NewsTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", NewToolError(t.Name(), "query argument is required", "VALIDATION_ERROR")
	}

	count := DefaultNewsCount
	switch v := args["count"].(type) {
	case float64:
		count = int(v)
	case int:
		count = v
	}
	if count < 1 {
		count = DefaultNewsCount
	}
	if count > MaxNewsCount {
		count = MaxNewsCount
	}

	endpoint := fmt.Sprintf("%s/everything?q=%s&pageSize=%d&apiKey=%s", t.baseURL, url.QueryEscape(query), count, url.QueryEscape(t.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewToolError(t.Name(), fmt.Sprintf("news api request failed: %v", err), "UPSTREAM_ERROR")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewToolError(t.Name(), fmt.Sprintf("reading news api response: %v", err), "UPSTREAM_ERROR")
	}

	if !gjson.ValidBytes(body) {
		return "", NewToolError(t.Name(), "news api returned malformed JSON", "UPSTREAM_ERROR")
	}

	parsed := gjson.ParseBytes(body)
	if parsed.Get("status").String() != "ok" {
		return "", NewToolError(t.Name(), fmt.Sprintf("news api error: %s", parsed.Get("message").String()), "UPSTREAM_ERROR")
	}

	type article struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	}

	articles := []article{}
	parsed.Get("articles").ForEach(func(_, a gjson.Result) bool {
		articles = append(articles, article{
			Title:       a.Get("title").String(),
			Description: a.Get("description").String(),
			URL:         a.Get("url").String(),
			PublishedAt: a.Get("publishedAt").String(),
		})
		return true
	})

	out, err := json.Marshal(articles)
	if err != nil {
		return "", err
	}

	return string(out), nil
}
