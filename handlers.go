package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const chatContextDepth = 10

// Handlers owns the provider clients and implements every bot command.
// Clients for unconfigured providers are nil; their commands answer with a
// configuration hint instead of calling out.
type Handlers struct {
	store   Store
	ai      *AIClient
	home    *HomeAssistantClient
	vehicle *VehicleClient
	finance *FinanceClient
	news    *NewsClient
	notes   *NotesClient

	// send delivers a message outside the request/response cycle
	// (broadcasts, alerts).
	send func(ctx context.Context, chatID int64, text string) error

	startedAt time.Time
}

func NewHandlers(store Store, send func(ctx context.Context, chatID int64, text string) error) *Handlers {
	return &Handlers{store: store, send: send, startedAt: time.Now()}
}

// RegisterAll populates the command registry. Called once during startup.
func (h *Handlers) RegisterAll(reg *Registry) {
	reg.Register("start", h.Start, false, "Show the welcome message")
	reg.Register("help", func(ctx context.Context, req *Request) (string, error) {
		return h.Help(reg), nil
	}, false, "List available commands")
	reg.Register("status", h.Status, false, "Bot status and uptime")
	reg.Register("ask", h.Ask, false, "Chat with the AI assistant")
	reg.Register("image", h.Image, false, "Generate an image: /image a red fox in the snow")
	reg.Register("lights", h.Lights, false, "List or switch lights: /lights [on|off <entity>]")
	reg.Register("scene", h.Scene, false, "Activate a scene: /scene movie")
	reg.Register("vehicle", h.Vehicle, false, "Vehicle state")
	reg.Register("climate", h.Climate, false, "Vehicle climate: /climate on|off")
	reg.Register("stocks", h.Stocks, false, "Stock quote: /stocks AAPL")
	reg.Register("crypto", h.Crypto, false, "Crypto price: /crypto bitcoin")
	reg.Register("news", h.News, false, "Top headlines: /news [topic]")
	reg.Register("note", h.Note, false, "Save a note: /note buy milk")

	reg.Register("stats", h.Stats, true, "Per-command usage statistics")
	reg.Register("logs", h.Logs, true, "Recent failed attempts")
	reg.Register("broadcast", h.Broadcast, true, "Message every known user: /broadcast text")
}

func (h *Handlers) Start(ctx context.Context, req *Request) (string, error) {
	name := req.Username
	if name == "" {
		name = strconv.FormatInt(req.PrincipalID, 10)
	}
	return fmt.Sprintf("Welcome, %s. I relay your commands to the services you have configured. Type /help for the list of commands.", name), nil
}

func (h *Handlers) Help(reg *Registry) string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, e := range reg.Entries() {
		fmt.Fprintf(&b, "/%s - %s", e.Name, e.Help)
		if e.AdminOnly {
			b.WriteString(" (admin)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handlers) Status(ctx context.Context, req *Request) (string, error) {
	storeState := "ok"
	if p, ok := h.store.(interface{ ping() bool }); ok && !p.ping() {
		storeState = "unreachable"
	}
	uptime := time.Since(h.startedAt).Round(time.Second)
	return fmt.Sprintf("Bot is running.\nUptime: %s\nStore: %s", uptime, storeState), nil
}

func (h *Handlers) Ask(ctx context.Context, req *Request) (string, error) {
	if h.ai == nil {
		return "AI chat is not configured.", nil
	}
	prompt := strings.TrimSpace(req.Args)
	if prompt == "" {
		return "Usage: /ask <question>", nil
	}

	messages := []ChatMessage{{Role: "system", Content: "You are a concise personal assistant inside a messaging bot."}}
	history, err := h.store.RecentChatExchanges(req.PrincipalID, chatContextDepth)
	if err != nil {
		// Context is an enhancement; answer without it.
		history = nil
	}
	for _, ex := range history {
		messages = append(messages, ChatMessage{Role: "user", Content: ex.Prompt})
		if ex.Reply != "" {
			messages = append(messages, ChatMessage{Role: "assistant", Content: ex.Reply})
		}
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	reply, usage, err := h.ai.ChatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	req.SetMeta("prompt_tokens", strconv.Itoa(usage.PromptTokens))
	req.SetMeta("completion_tokens", strconv.Itoa(usage.CompletionTokens))

	// History is best-effort; the reply goes out regardless.
	_ = h.store.AppendChatExchange(ChatExchange{UserID: req.PrincipalID, Prompt: prompt, Reply: reply})
	return reply, nil
}

func (h *Handlers) Image(ctx context.Context, req *Request) (string, error) {
	if h.ai == nil {
		return "Image generation is not configured.", nil
	}
	prompt := strings.TrimSpace(req.Args)
	if prompt == "" {
		return "Usage: /image <description>", nil
	}
	url, err := h.ai.GenerateImage(ctx, prompt)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (h *Handlers) Lights(ctx context.Context, req *Request) (string, error) {
	if h.home == nil {
		return "Smart home is not configured.", nil
	}
	args := strings.Fields(req.Args)
	if len(args) == 0 {
		lights, err := h.home.Lights(ctx)
		if err != nil {
			return "", err
		}
		if len(lights) == 0 {
			return "No lights found.", nil
		}
		var b strings.Builder
		b.WriteString("Lights:\n")
		for _, l := range lights {
			fmt.Fprintf(&b, "%s: %s\n", l.EntityID, l.State)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
	if len(args) != 2 || (args[0] != "on" && args[0] != "off") {
		return "Usage: /lights [on|off <entity>]", nil
	}
	service := "turn_" + args[0]
	entity := args[1]
	if !strings.Contains(entity, ".") {
		entity = "light." + entity
	}
	if err := h.home.CallService(ctx, "light", service, entity); err != nil {
		return "", err
	}
	return fmt.Sprintf("Turned %s %s.", args[0], entity), nil
}

func (h *Handlers) Scene(ctx context.Context, req *Request) (string, error) {
	if h.home == nil {
		return "Smart home is not configured.", nil
	}
	name := strings.TrimSpace(req.Args)
	if name == "" {
		return "Usage: /scene <name>", nil
	}
	if err := h.home.ActivateScene(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scene %s activated.", name), nil
}

func (h *Handlers) Vehicle(ctx context.Context, req *Request) (string, error) {
	if h.vehicle == nil {
		return "Vehicle integration is not configured.", nil
	}
	state, err := h.vehicle.State(ctx)
	if err != nil {
		return "", err
	}
	locked := "unlocked"
	if state.Locked {
		locked = "locked"
	}
	return fmt.Sprintf("%s: %s, battery %d%% (%.0f mi), inside %.1f C, %s",
		state.DisplayName, state.State, state.BatteryLevel, state.RangeMiles, state.InsideTemp, locked), nil
}

func (h *Handlers) Climate(ctx context.Context, req *Request) (string, error) {
	if h.vehicle == nil {
		return "Vehicle integration is not configured.", nil
	}
	arg := strings.TrimSpace(req.Args)
	if arg != "on" && arg != "off" {
		return "Usage: /climate on|off", nil
	}
	if arg == "on" {
		if err := h.vehicle.Wake(ctx); err != nil {
			return "", err
		}
	}
	if err := h.vehicle.SetClimate(ctx, arg == "on"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Climate turned %s.", arg), nil
}

func (h *Handlers) Stocks(ctx context.Context, req *Request) (string, error) {
	if h.finance == nil {
		return "Market data is not configured.", nil
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Args))
	if symbol == "" {
		return "Usage: /stocks <symbol>", nil
	}
	quote, err := h.finance.StockQuote(ctx, symbol)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s (%s)", quote.Symbol, quote.Price, quote.ChangePercent), nil
}

func (h *Handlers) Crypto(ctx context.Context, req *Request) (string, error) {
	if h.finance == nil {
		return "Market data is not configured.", nil
	}
	coin := strings.TrimSpace(req.Args)
	if coin == "" {
		return "Usage: /crypto <coin>", nil
	}
	price, err := h.finance.CryptoPrice(ctx, coin)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: $%.2f", strings.ToLower(coin), price), nil
}

func (h *Handlers) News(ctx context.Context, req *Request) (string, error) {
	if h.news == nil {
		return "News is not configured.", nil
	}
	articles, err := h.news.TopHeadlines(ctx, strings.TrimSpace(req.Args), 5)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		return "No headlines found.", nil
	}
	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "%s (%s)\n%s\n", a.Title, a.Source.Name, a.URL)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *Handlers) Note(ctx context.Context, req *Request) (string, error) {
	if h.notes == nil {
		return "Notes are not configured.", nil
	}
	text := strings.TrimSpace(req.Args)
	if text == "" {
		return "Usage: /note <text>", nil
	}
	if err := h.notes.Append(ctx, text); err != nil {
		return "", err
	}
	return "Note saved.", nil
}
