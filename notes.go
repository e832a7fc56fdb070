package main

import (
	"context"
	"fmt"
	"net/http"
)

// NotesClient appends note blocks to a Notion page.
type NotesClient struct {
	baseURL string
	token   string
	pageID  string
	http    *http.Client
}

func NewNotesClient(token, pageID string) *NotesClient {
	return &NotesClient{
		baseURL: "https://api.notion.com",
		token:   token,
		pageID:  pageID,
		http:    newProviderHTTPClient(),
	}
}

// Append adds one paragraph block with the note text.
func (c *NotesClient) Append(ctx context.Context, text string) error {
	headers := map[string]string{
		"Authorization":  "Bearer " + c.token,
		"Notion-Version": "2022-06-28",
	}
	body := map[string]interface{}{
		"children": []map[string]interface{}{
			{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]interface{}{
					"rich_text": []map[string]interface{}{
						{"type": "text", "text": map[string]string{"content": text}},
					},
				},
			},
		},
	}
	url := fmt.Sprintf("%s/v1/blocks/%s/children", c.baseURL, c.pageID)
	if err := doJSON(ctx, c.http, http.MethodPatch, url, headers, body, nil); err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	return nil
}
