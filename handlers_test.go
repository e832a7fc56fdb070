package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHelpListsEveryCommand(t *testing.T) {
	h := NewHandlers(NewMemStore(), nil)
	reg := NewRegistry()
	h.RegisterAll(reg)

	help := h.Help(reg)
	for _, e := range reg.Entries() {
		require.Contains(t, help, "/"+e.Name)
	}
	require.Contains(t, help, "(admin)")
}

func TestAskReplaysChatContext(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.AppendChatExchange(ChatExchange{UserID: 111, Prompt: "earlier question", Reply: "earlier answer"}))

	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "fresh answer"}},
			},
			"usage": map[string]int{"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35},
		})
	}))
	defer srv.Close()

	h := NewHandlers(store, nil)
	h.ai = NewAIClient(srv.URL, "sk-test", "gpt-4", 600)

	req := &Request{PrincipalID: 111, Command: "ask", Args: "new question"}
	reply, err := h.Ask(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "fresh answer", reply)

	// system + prior user + prior assistant + new user
	require.Len(t, gotReq.Messages, 4)
	require.Equal(t, "earlier question", gotReq.Messages[1].Content)
	require.Equal(t, "earlier answer", gotReq.Messages[2].Content)
	require.Equal(t, "new question", gotReq.Messages[3].Content)

	// Token usage surfaces in the request metadata for the activity log.
	require.Equal(t, "30", req.Meta["prompt_tokens"])

	// The exchange is stored for the next turn.
	history, err := store.RecentChatExchanges(111, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "new question", history[1].Prompt)
}

func TestAskWithoutProviderConfigured(t *testing.T) {
	h := NewHandlers(NewMemStore(), nil)
	reply, err := h.Ask(context.Background(), &Request{PrincipalID: 111, Args: "hi"})
	require.NoError(t, err)
	require.Contains(t, reply, "not configured")
}

func TestImageRepliesWithHostedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://img.example/gen/7.png"}},
		})
	}))
	defer srv.Close()

	h := NewHandlers(NewMemStore(), nil)
	h.ai = NewAIClient(srv.URL, "sk-test", "gpt-4", 600)

	reply, err := h.Image(context.Background(), &Request{PrincipalID: 111, Args: "a lighthouse at dusk"})
	require.NoError(t, err)
	require.Equal(t, "https://img.example/gen/7.png", reply)

	reply, err = h.Image(context.Background(), &Request{PrincipalID: 111})
	require.NoError(t, err)
	require.Contains(t, reply, "Usage:")
}

func TestStatsAggregatesActivity(t *testing.T) {
	store := NewMemStore()
	store.AppendActivity(ActivityRecord{Timestamp: time.Now(), PrincipalID: 111, Command: "ask", Success: true})
	store.AppendActivity(ActivityRecord{Timestamp: time.Now(), PrincipalID: 111, Command: "ask", Success: false})
	store.AppendActivity(ActivityRecord{Timestamp: time.Now(), PrincipalID: 222, Command: "status", Success: true})

	h := NewHandlers(store, nil)
	out, err := h.Stats(context.Background(), &Request{PrincipalID: 111})
	require.NoError(t, err)
	require.Contains(t, out, "ask: 2 attempts, 1 failed")
	require.Contains(t, out, "status: 1 attempts, 0 failed")
}

func TestLogsShowsRecentFailures(t *testing.T) {
	store := NewMemStore()
	store.AppendActivity(ActivityRecord{Timestamp: time.Now(), PrincipalID: 111, Command: "ask", Success: false, Metadata: `{"reason":"handler_error"}`})

	h := NewHandlers(store, nil)
	out, err := h.Logs(context.Background(), &Request{PrincipalID: 111})
	require.NoError(t, err)
	require.Contains(t, out, "cmd=ask")
	require.Contains(t, out, "handler_error")
}

func TestBroadcastReachesKnownUsers(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.UpsertUser(111, "alice", ""))
	require.NoError(t, store.UpsertUser(222, "bob", ""))
	require.NoError(t, store.UpsertUser(333, "carol", ""))

	var sent []int64
	send := func(ctx context.Context, chatID int64, text string) error {
		if chatID == 222 {
			return errors.New("blocked the bot")
		}
		sent = append(sent, chatID)
		return nil
	}

	h := NewHandlers(store, send)
	out, err := h.Broadcast(context.Background(), &Request{PrincipalID: 111, Args: "maintenance at noon"})
	require.NoError(t, err)
	require.Equal(t, "Broadcast delivered to 2 of 3 users.", out)
	require.Equal(t, []int64{111, 333}, sent)
}

func TestLightsUsage(t *testing.T) {
	var called struct {
		path   string
		entity string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/states" {
			json.NewEncoder(w).Encode([]HAEntityState{
				{EntityID: "light.kitchen", State: "on"},
				{EntityID: "sensor.door", State: "closed"},
			})
			return
		}
		called.path = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		called.entity = body["entity_id"]
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	h := NewHandlers(NewMemStore(), nil)
	h.home = NewHomeAssistantClient(srv.URL, "ha-token")

	out, err := h.Lights(context.Background(), &Request{PrincipalID: 111})
	require.NoError(t, err)
	require.Contains(t, out, "light.kitchen: on")
	require.NotContains(t, out, "sensor.door")

	out, err = h.Lights(context.Background(), &Request{PrincipalID: 111, Args: "off kitchen"})
	require.NoError(t, err)
	require.Contains(t, out, "light.kitchen")
	require.Equal(t, "/api/services/light/turn_off", called.path)
	require.Equal(t, "light.kitchen", called.entity)
}
