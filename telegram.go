package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram Bot API wire types (the subset the bot consumes).
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type TelegramChat struct {
	ID int64 `json:"id"`
}

type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from"`
	Chat      TelegramChat  `json:"chat"`
	Date      int64         `json:"date"`
	Text      string        `json:"text"`
}

type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// TelegramClient is a minimal Bot API client over plain HTTP.
type TelegramClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewTelegramClient(token string) *TelegramClient {
	return &TelegramClient{
		baseURL: telegramAPIBase,
		token:   token,
		// Long polling holds the request open for up to the poll
		// timeout, so the client timeout must exceed it.
		http: &http.Client{Timeout: 70 * time.Second},
	}
}

func (c *TelegramClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()
	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s: telegram error: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *TelegramClient) GetMe(ctx context.Context) (*TelegramUser, error) {
	var me TelegramUser
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := map[string]interface{}{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := map[string]interface{}{"chat_id": chatID, "text": text}
	return c.call(ctx, "sendMessage", params, nil)
}

func (c *TelegramClient) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	if _, err := url.Parse(webhookURL); err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	params := map[string]interface{}{"url": webhookURL, "secret_token": secret}
	return c.call(ctx, "setWebhook", params, nil)
}

func (c *TelegramClient) DeleteWebhook(ctx context.Context) error {
	params := map[string]interface{}{"drop_pending_updates": true}
	return c.call(ctx, "deleteWebhook", params, nil)
}

// ParseCommand splits a message like "/ask how are you" into its command name
// and arguments. A "@botname" suffix on the command is stripped. ok is false
// for non-command text.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[1:], " ")
	if name == "" {
		return "", "", false
	}
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// Bot ties the transport to the dispatch pipeline: one goroutine per inbound
// update.
type Bot struct {
	client   *TelegramClient
	pipeline *Pipeline
	store    Store
}

func NewBot(client *TelegramClient, pipeline *Pipeline, store Store) *Bot {
	return &Bot{client: client, pipeline: pipeline, store: store}
}

// Poll runs the long-polling loop until ctx is cancelled.
func (b *Bot) Poll(ctx context.Context) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		updates, err := b.client.GetUpdates(ctx, offset, 30)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[poll] getUpdates: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			go b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches one update and relays the response. Non-command
// text is routed to the AI chat command.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) {
	if u.Message == nil || u.Message.From == nil || u.Message.Text == "" {
		return
	}
	msg := u.Message

	// Seen-user bookkeeping is best-effort.
	if err := b.store.UpsertUser(msg.From.ID, msg.From.Username, msg.From.FirstName); err != nil {
		log.Printf("[poll] upsert user %d: %v", msg.From.ID, err)
	}

	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		name, args = "ask", msg.Text
	}
	req := &Request{
		PrincipalID: msg.From.ID,
		Username:    msg.From.Username,
		Command:     name,
		Args:        args,
		ReceivedAt:  time.Unix(msg.Date, 0),
	}
	resp := b.pipeline.Dispatch(ctx, req)
	if resp.Text == "" {
		return
	}
	if err := b.client.SendMessage(ctx, msg.Chat.ID, resp.Text); err != nil {
		log.Printf("[poll] send to chat %d: %v", msg.Chat.ID, err)
	}
}
