package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	pipeline *Pipeline
	store    *MemStore
	recorder *Recorder
	clock    *fakeClock
	registry *Registry
	invoked  map[string]int
}

// newTestEnv builds a pipeline over a memory store with a controllable
// clock. Registered commands count invocations in env.invoked.
func newTestEnv(t *testing.T, allowed []int64, maxRequests int, window time.Duration) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemStore(),
		clock:    newFakeClock(),
		registry: NewRegistry(),
		invoked:  map[string]int{},
	}
	env.recorder = NewRecorder(env.store, 64)
	env.pipeline = NewPipeline(
		NewAllowList(allowed),
		NewLimiter(maxRequests, window),
		env.recorder,
		env.registry,
	)
	env.pipeline.now = env.clock.Now
	return env
}

func (env *testEnv) register(name string, adminOnly bool, fn HandlerFunc) {
	env.registry.Register(name, func(ctx context.Context, req *Request) (string, error) {
		env.invoked[name]++
		if fn != nil {
			return fn(ctx, req)
		}
		return "done", nil
	}, adminOnly, "test command")
}

func (env *testEnv) dispatch(userID int64, command string) *Response {
	return env.pipeline.Dispatch(context.Background(), &Request{PrincipalID: userID, Command: command})
}

// records drains the recorder and returns everything persisted, oldest first.
func (env *testEnv) records(t *testing.T) []ActivityRecord {
	t.Helper()
	env.recorder.Close()
	recs, err := env.store.RecentActivity(0)
	require.NoError(t, err)
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs
}

func TestUnauthorizedRejectedBeforeHandlerAndBudget(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 5, time.Minute)
	env.register("status", false, nil)

	resp := env.dispatch(999, "status")
	require.Equal(t, StateRejectedUnauthorized, resp.State)
	require.Equal(t, msgNotAuthorized, resp.Text)
	require.Zero(t, env.invoked["status"])

	// An unauthorized attempt must not have consumed rate budget.
	require.Zero(t, env.pipeline.limiter.Pending(999, env.clock.Now()))

	recs := env.records(t)
	require.Len(t, recs, 1)
	require.False(t, recs[0].Success)
	require.Equal(t, "status", recs[0].Command)
	require.Contains(t, recs[0].Metadata, "unauthorized")
}

func TestRateLimitEnforcedPerWindow(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 3, time.Minute)
	env.register("status", false, nil)

	for i := 0; i < 3; i++ {
		resp := env.dispatch(111, "status")
		require.Equal(t, StateResponded, resp.State, "request %d should pass", i+1)
	}
	resp := env.dispatch(111, "status")
	require.Equal(t, StateRejectedRateLimited, resp.State)
	require.Equal(t, msgRateLimited, resp.Text)
	require.Equal(t, 3, env.invoked["status"])
}

func TestRateLimitResetsAfterWindow(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 2, time.Minute)
	env.register("status", false, nil)

	require.Equal(t, StateResponded, env.dispatch(111, "status").State)
	require.Equal(t, StateResponded, env.dispatch(111, "status").State)
	require.Equal(t, StateRejectedRateLimited, env.dispatch(111, "status").State)

	env.clock.Advance(time.Minute)
	require.Equal(t, StateResponded, env.dispatch(111, "status").State)
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t, []int64{111, 222}, 10, time.Minute)
	env.register("admin_reset", true, nil)

	// The configured administrator is the first allow-list entry.
	resp := env.dispatch(111, "admin_reset")
	require.Equal(t, StateResponded, resp.State)

	resp = env.dispatch(222, "admin_reset")
	require.Equal(t, StateRejectedNotAdmin, resp.State)
	require.Equal(t, msgNotAdmin, resp.Text)
	require.Equal(t, 1, env.invoked["admin_reset"])
}

func TestAdminGateWithoutConfiguredAdmin(t *testing.T) {
	env := newTestEnv(t, nil, 10, time.Minute)
	env.register("admin_reset", true, nil)

	// An authorized request cannot exist with an empty allow-list, so the
	// not-configured answer is exercised directly at the gate.
	resp := env.pipeline.adminGate(context.Background(), &Request{
		PrincipalID: 111,
		Command:     "admin_reset",
		entry:       mustResolve(t, env.registry, "admin_reset"),
	}, func(ctx context.Context, req *Request) *Response {
		t.Fatal("gate must not pass without a configured administrator")
		return nil
	})
	require.Equal(t, StateRejectedNotAdmin, resp.State)
	require.Equal(t, msgAdminNotConfigured, resp.Text)
}

func mustResolve(t *testing.T, reg *Registry, name string) *RegistryEntry {
	t.Helper()
	e, ok := reg.Resolve(name)
	require.True(t, ok)
	return e
}

func TestHandlerErrorDetailNeverReachesUser(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 10, time.Minute)
	env.register("ask", false, func(ctx context.Context, req *Request) (string, error) {
		return "", errors.New("provider 500: https://internal.example/v1?key=sk-secret")
	})

	resp := env.dispatch(111, "ask")
	require.Equal(t, StateFailed, resp.State)
	require.Equal(t, msgHandlerFailed, resp.Text)
	require.NotContains(t, resp.Text, "sk-secret")

	recs := env.records(t)
	require.Len(t, recs, 1)
	require.False(t, recs[0].Success)
	require.Contains(t, recs[0].Metadata, "handler_error")
	require.Contains(t, recs[0].Metadata, "sk-secret")
}

func TestHandlerPanicIsClassified(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 10, time.Minute)
	env.register("boom", false, func(ctx context.Context, req *Request) (string, error) {
		panic("unexpected state")
	})

	resp := env.dispatch(111, "boom")
	require.Equal(t, StateFailed, resp.State)
	require.Equal(t, msgHandlerFailed, resp.Text)
}

func TestUnknownCommandRecorded(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 10, time.Minute)

	resp := env.dispatch(111, "bogus")
	require.Equal(t, StateResponded, resp.State)
	require.Equal(t, msgUnknownCommand, resp.Text)

	recs := env.records(t)
	require.Len(t, recs, 1)
	require.False(t, recs[0].Success)
	require.Equal(t, "bogus", recs[0].Command)
	require.Contains(t, recs[0].Metadata, "unknown_command")
}

func TestHandlerMetadataFlowsIntoRecord(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 10, time.Minute)
	env.register("ask", false, func(ctx context.Context, req *Request) (string, error) {
		req.SetMeta("prompt_tokens", "42")
		return "hi", nil
	})

	resp := env.dispatch(111, "ask")
	require.Equal(t, StateResponded, resp.State)

	recs := env.records(t)
	require.Len(t, recs, 1)
	require.True(t, recs[0].Success)
	require.Contains(t, recs[0].Metadata, `"prompt_tokens":"42"`)
}

func TestHandlerLatencyRecorded(t *testing.T) {
	env := newTestEnv(t, []int64{111}, 10, time.Minute)
	env.register("slow", false, func(ctx context.Context, req *Request) (string, error) {
		env.clock.Advance(250 * time.Millisecond)
		return "ok", nil
	})

	env.dispatch(111, "slow")
	recs := env.records(t)
	require.Len(t, recs, 1)
	require.Equal(t, int64(250), recs[0].LatencyMS)
}

// TestEveryTerminalStateProducesExactlyOneRecord runs the concrete
// mixed-outcome scenario: allow-list [111, 222], admin 111, rate limit 2/60s.
func TestEveryTerminalStateProducesExactlyOneRecord(t *testing.T) {
	env := newTestEnv(t, []int64{111, 222}, 2, time.Minute)
	env.register("status", false, nil)
	env.register("admin_reset", true, nil)
	env.register("broken", false, func(ctx context.Context, req *Request) (string, error) {
		return "", errors.New("boom")
	})

	expected := []struct {
		user    int64
		command string
		state   TerminalState
	}{
		{111, "status", StateResponded},
		{111, "status", StateResponded},
		{111, "status", StateRejectedRateLimited},
		{999, "status", StateRejectedUnauthorized},
		{222, "admin_reset", StateRejectedNotAdmin},
		{222, "broken", StateFailed},
	}
	for i, step := range expected {
		resp := env.dispatch(step.user, step.command)
		require.Equal(t, step.state, resp.State, "step %d (%d /%s)", i, step.user, step.command)
	}

	recs := env.records(t)
	require.Len(t, recs, len(expected), "exactly one record per attempt")
	for i, step := range expected {
		require.Equal(t, step.user, recs[i].PrincipalID, "record %d", i)
		require.Equal(t, step.command, recs[i].Command, "record %d", i)
		require.Equal(t, step.state == StateResponded, recs[i].Success, "record %d", i)
	}
}

func TestTerminalStateStrings(t *testing.T) {
	require.Equal(t, "responded", StateResponded.String())
	require.Equal(t, "rejected_unauthorized", StateRejectedUnauthorized.String())
	require.Equal(t, "rejected_rate_limited", StateRejectedRateLimited.String())
	require.Equal(t, "rejected_not_admin", StateRejectedNotAdmin.String())
	require.Equal(t, "failed", StateFailed.String())
}
