package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// NewsClient wraps the NewsAPI top-headlines endpoint.
type NewsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewNewsClient(apiKey string) *NewsClient {
	return &NewsClient{
		baseURL: "https://newsapi.org",
		apiKey:  apiKey,
		http:    newProviderHTTPClient(),
	}
}

type NewsArticle struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
}

// TopHeadlines returns up to limit headlines, optionally filtered by query.
func (c *NewsClient) TopHeadlines(ctx context.Context, query string, limit int) ([]NewsArticle, error) {
	q := url.Values{}
	q.Set("language", "en")
	q.Set("pageSize", fmt.Sprint(limit))
	if query != "" {
		q.Set("q", query)
	}
	headers := map[string]string{"X-Api-Key": c.apiKey}
	var out struct {
		Status   string        `json:"status"`
		Articles []NewsArticle `json:"articles"`
	}
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+"/v2/top-headlines?"+q.Encode(), headers, nil, &out); err != nil {
		return nil, fmt.Errorf("news headlines: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("news headlines: status %s", out.Status)
	}
	return out.Articles, nil
}
