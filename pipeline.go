package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// TerminalState is the final outcome of one dispatched command.
type TerminalState int

const (
	StateResponded TerminalState = iota
	StateRejectedUnauthorized
	StateRejectedRateLimited
	StateRejectedNotAdmin
	StateFailed
)

func (s TerminalState) String() string {
	switch s {
	case StateResponded:
		return "responded"
	case StateRejectedUnauthorized:
		return "rejected_unauthorized"
	case StateRejectedRateLimited:
		return "rejected_rate_limited"
	case StateRejectedNotAdmin:
		return "rejected_not_admin"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Request is one inbound command event, already deserialized by the
// transport.
type Request struct {
	PrincipalID int64
	Username    string
	Command     string
	Args        string
	ReceivedAt  time.Time

	// Meta carries handler-provided metadata (token counts, provider
	// detail) into the activity record.
	Meta map[string]string

	entry *RegistryEntry
}

// SetMeta attaches one metadata field to the request's activity record.
func (r *Request) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = make(map[string]string)
	}
	r.Meta[key] = value
}

// Response is the user-facing result of a dispatch.
type Response struct {
	Text  string
	State TerminalState
}

// Next advances the request to the remaining steps of the chain.
type Next func(ctx context.Context, req *Request) *Response

// Step is one middleware stage: it either produces a terminal response or
// calls next.
type Step func(ctx context.Context, req *Request, next Next) *Response

// Pipeline runs every inbound command through the ordered chain
// authorize -> rate-limit -> admin-gate -> invoke, and emits exactly one
// activity record per attempt regardless of outcome.
type Pipeline struct {
	allow    *AllowList
	limiter  *Limiter
	recorder *Recorder
	registry *Registry
	now      func() time.Time
	chain    Next
}

func NewPipeline(allow *AllowList, limiter *Limiter, recorder *Recorder, registry *Registry) *Pipeline {
	p := &Pipeline{
		allow:    allow,
		limiter:  limiter,
		recorder: recorder,
		registry: registry,
		now:      time.Now,
	}
	// Order matters: an unauthorized user must not consume rate budget,
	// and neither rejection may reach a handler.
	steps := []Step{p.authorize, p.rateLimit, p.adminGate}
	next := Next(p.invoke)
	for i := len(steps) - 1; i >= 0; i-- {
		step, inner := steps[i], next
		next = func(ctx context.Context, req *Request) *Response {
			return step(ctx, req, inner)
		}
	}
	p.chain = next
	return p
}

// Dispatch runs one command through the chain.
func (p *Pipeline) Dispatch(ctx context.Context, req *Request) *Response {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}
	if e, ok := p.registry.Resolve(req.Command); ok {
		req.entry = e
	}
	return p.chain(ctx, req)
}

func (p *Pipeline) authorize(ctx context.Context, req *Request, next Next) *Response {
	if !p.allow.IsAuthorized(req.PrincipalID) {
		log.Printf("[dispatch] unauthorized attempt from user %d (command %q)", req.PrincipalID, req.Command)
		p.record(req, false, map[string]string{"reason": "unauthorized"}, 0)
		return &Response{Text: msgNotAuthorized, State: StateRejectedUnauthorized}
	}
	return next(ctx, req)
}

func (p *Pipeline) rateLimit(ctx context.Context, req *Request, next Next) *Response {
	if !p.limiter.Allow(req.PrincipalID, p.now()) {
		log.Printf("[dispatch] rate limited user %d (command %q)", req.PrincipalID, req.Command)
		p.record(req, false, map[string]string{"reason": "rate_limited"}, 0)
		return &Response{Text: msgRateLimited, State: StateRejectedRateLimited}
	}
	return next(ctx, req)
}

func (p *Pipeline) adminGate(ctx context.Context, req *Request, next Next) *Response {
	if req.entry == nil || !req.entry.AdminOnly {
		return next(ctx, req)
	}
	if _, ok := p.allow.AdminID(); !ok {
		log.Printf("[dispatch] admin command %q but no administrator configured", req.Command)
		p.record(req, false, map[string]string{"reason": "not_admin"}, 0)
		return &Response{Text: msgAdminNotConfigured, State: StateRejectedNotAdmin}
	}
	if !p.allow.IsAdministrator(req.PrincipalID) {
		log.Printf("[dispatch] non-admin user %d attempted %q", req.PrincipalID, req.Command)
		p.record(req, false, map[string]string{"reason": "not_admin"}, 0)
		return &Response{Text: msgNotAdmin, State: StateRejectedNotAdmin}
	}
	return next(ctx, req)
}

func (p *Pipeline) invoke(ctx context.Context, req *Request) *Response {
	if req.entry == nil {
		p.record(req, false, map[string]string{"reason": "unknown_command"}, 0)
		return &Response{Text: msgUnknownCommand, State: StateResponded}
	}

	start := p.now()
	text, err := p.callHandler(ctx, req)
	latency := p.now().Sub(start)

	if err != nil {
		// Full detail stays in logs and the record; the user gets a
		// fixed message so provider errors cannot leak credentials
		// or internal URLs.
		log.Printf("[dispatch] handler %q failed for user %d after %v: %v", req.Command, req.PrincipalID, latency, err)
		meta := map[string]string{"reason": "handler_error", "error": err.Error()}
		p.record(req, false, meta, latency)
		return &Response{Text: msgHandlerFailed, State: StateFailed}
	}

	p.record(req, true, nil, latency)
	return &Response{Text: text, State: StateResponded}
}

func (p *Pipeline) callHandler(ctx context.Context, req *Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return req.entry.Handler(ctx, req)
}

func (p *Pipeline) record(req *Request, success bool, fields map[string]string, latency time.Duration) {
	merged := make(map[string]string, len(fields)+len(req.Meta))
	for k, v := range req.Meta {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	meta := ""
	if len(merged) > 0 {
		if b, err := json.Marshal(merged); err == nil {
			meta = string(b)
		}
	}
	p.recorder.Record(ActivityRecord{
		Timestamp:   p.now(),
		PrincipalID: req.PrincipalID,
		Command:     req.Command,
		Success:     success,
		Metadata:    meta,
		LatencyMS:   latency.Milliseconds(),
	})
}
