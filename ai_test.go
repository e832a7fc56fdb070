package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAIClientChatCompletion(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello back"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16},
		})
	}))
	defer srv.Close()

	c := NewAIClient(srv.URL+"/v1", "sk-test", "gpt-4", 600)
	reply, usage, err := c.ChatCompletion(context.Background(), []ChatMessage{
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello back", reply)
	require.Equal(t, 12, usage.PromptTokens)
	require.Equal(t, 4, usage.CompletionTokens)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "gpt-4", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
}

func TestAIClientProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAIClient(srv.URL, "sk-test", "gpt-4", 600)
	_, _, err := c.ChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestAIClientGenerateImage(t *testing.T) {
	var gotReq imageGenerationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://img.example/gen/1.png"}},
		})
	}))
	defer srv.Close()

	c := NewAIClient(srv.URL+"/v1", "sk-test", "gpt-4", 600)
	url, err := c.GenerateImage(context.Background(), "a red fox in the snow")
	require.NoError(t, err)
	require.Equal(t, "https://img.example/gen/1.png", url)
	require.Equal(t, "a red fox in the snow", gotReq.Prompt)
	require.Equal(t, 1, gotReq.N)
}

func TestAIClientGenerateImageEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer srv.Close()

	c := NewAIClient(srv.URL, "sk-test", "gpt-4", 600)
	_, err := c.GenerateImage(context.Background(), "a red fox")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty response")
}

func TestAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := NewAIClient(srv.URL, "sk-test", "gpt-4", 600)
	_, _, err := c.ChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty choices")
}
