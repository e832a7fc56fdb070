package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Admin-only commands. The pipeline's admin gate guarantees these only run
// for the configured administrator.

func (h *Handlers) Stats(ctx context.Context, req *Request) (string, error) {
	stats, err := h.store.CommandStats()
	if err != nil {
		return "", fmt.Errorf("loading stats: %w", err)
	}
	if len(stats) == 0 {
		return "No activity recorded yet.", nil
	}
	var b strings.Builder
	b.WriteString("Command usage:\n")
	for _, s := range stats {
		name := s.Command
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(&b, "%s: %d attempts, %d failed\n", name, s.Attempts, s.Failures)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *Handlers) Logs(ctx context.Context, req *Request) (string, error) {
	failures, err := h.store.RecentFailures(10)
	if err != nil {
		return "", fmt.Errorf("loading failures: %w", err)
	}
	if len(failures) == 0 {
		return "No failures recorded.", nil
	}
	var b strings.Builder
	b.WriteString("Recent failures:\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "%s user=%d cmd=%s meta=%s\n",
			f.Timestamp.Format("2006-01-02 15:04:05"), f.PrincipalID, f.Command, f.Metadata)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *Handlers) Broadcast(ctx context.Context, req *Request) (string, error) {
	text := strings.TrimSpace(req.Args)
	if text == "" {
		return "Usage: /broadcast <text>", nil
	}
	if h.send == nil {
		return "", errors.New("no outbound transport configured")
	}
	users, err := h.store.KnownUsers()
	if err != nil {
		return "", fmt.Errorf("loading users: %w", err)
	}
	sent := 0
	for _, u := range users {
		if err := h.send(ctx, u.ID, text); err != nil {
			continue
		}
		sent++
	}
	return fmt.Sprintf("Broadcast delivered to %d of %d users.", sent, len(users)), nil
}
