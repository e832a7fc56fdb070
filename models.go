package main

import "time"

// Principal represents a messaging-client user the bot has seen.
type Principal struct {
	ID        int64
	Username  string
	FirstName string
	CreatedAt time.Time
}

// ActivityRecord is one append-only audit row per command attempt.
type ActivityRecord struct {
	ID          int64
	Timestamp   time.Time
	PrincipalID int64
	Command     string // empty if the message carried no command
	Success     bool
	Metadata    string // rejection reason, error text, or JSON usage info
	LatencyMS   int64
}

// ChatExchange stores one prompt/reply pair for AI conversation context.
type ChatExchange struct {
	ID        int64
	UserID    int64
	Prompt    string
	Reply     string
	CreatedAt time.Time
}

// CommandStat aggregates activity rows per command for the /stats report.
type CommandStat struct {
	Command  string
	Attempts int64
	Failures int64
}
