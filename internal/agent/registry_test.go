package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

func newTestRegistry() *Registry {
	return NewRegistry(DefaultRegistryConfig(), eventbus.New())
}

func validRegistration(id string) *Registration {
	return &Registration{
		ID:                 id,
		Capabilities:       []string{"go", "backend"},
		Transport:          TransportSSE,
		SessionID:          "session-" + id,
		MaxConcurrentTasks: 3,
	}
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry()

	cases := []struct {
		name   string
		mutate func(*Registration)
	}{
		{"empty id", func(reg *Registration) { reg.ID = "" }},
		{"no capabilities", func(reg *Registration) { reg.Capabilities = nil }},
		{"bad transport", func(reg *Registration) { reg.Transport = "carrier-pigeon" }},
		{"empty session", func(reg *Registration) { reg.SessionID = "" }},
		{"zero concurrency", func(reg *Registration) { reg.MaxConcurrentTasks = 0 }},
		{"excessive concurrency", func(reg *Registration) { reg.MaxConcurrentTasks = 11 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := validRegistration("agent-1")
			tc.mutate(reg)
			err := r.Register(reg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !cerr.IsCode(err, cerr.InvalidArgument) {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(validRegistration("agent-1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, ok := r.GetAgent("agent-1")
	if !ok {
		t.Fatal("agent not found after registration")
	}
	if got.Status != StatusOnline {
		t.Errorf("expected online status, got %s", got.Status)
	}
	if got.RegisteredAt.IsZero() || got.LastSeen.IsZero() {
		t.Error("expected registered_at and last_seen to be set")
	}

	bySession, ok := r.GetAgentBySession("session-agent-1")
	if !ok || bySession.ID != "agent-1" {
		t.Errorf("session lookup failed: ok=%v", ok)
	}
}

func TestReregisterMergesAndRebindsSession(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(validRegistration("agent-1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.UpdateAgentStatus("agent-1", StatusOffline); err != nil {
		t.Fatalf("status update failed: %v", err)
	}

	updated := validRegistration("agent-1")
	updated.SessionID = "session-new"
	updated.Capabilities = []string{"go", "frontend"}
	if err := r.Register(updated); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	got, _ := r.GetAgent("agent-1")
	if got.Status != StatusOnline {
		t.Errorf("re-registration should force online, got %s", got.Status)
	}
	if got.SessionID != "session-new" {
		t.Errorf("expected rebound session, got %s", got.SessionID)
	}
	if _, ok := r.GetAgentBySession("session-agent-1"); ok {
		t.Error("stale session should have been unbound")
	}
	if _, ok := r.GetAgentBySession("session-new"); !ok {
		t.Error("new session should resolve")
	}
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(validRegistration("agent-1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Unregister("agent-1"); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if _, ok := r.GetAgent("agent-1"); ok {
		t.Error("agent still present after unregister")
	}
	if err := r.Unregister("agent-1"); !cerr.IsCode(err, cerr.NotFound) {
		t.Errorf("expected NotFound on double unregister, got %v", err)
	}
}

func TestSetLoadFlipsBusy(t *testing.T) {
	r := newTestRegistry()
	reg := validRegistration("agent-1")
	reg.MaxConcurrentTasks = 2
	if err := r.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r.SetLoad("agent-1", 2)
	got, _ := r.GetAgent("agent-1")
	if got.Status != StatusBusy {
		t.Errorf("expected busy at capacity, got %s", got.Status)
	}
	if got.CurrentTaskCount != 2 {
		t.Errorf("expected task count 2, got %d", got.CurrentTaskCount)
	}

	r.SetLoad("agent-1", 1)
	got, _ = r.GetAgent("agent-1")
	if got.Status != StatusOnline {
		t.Errorf("expected online under capacity, got %s", got.Status)
	}
}

func TestHealthCheckMarksSilentAgentsOffline(t *testing.T) {
	r := newTestRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	if err := r.Register(validRegistration("silent")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(validRegistration("active")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The active agent polls four minutes in; the silent one never does.
	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	r.Touch("active")

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	flipped := r.PerformHealthCheck()
	if len(flipped) != 1 || flipped[0] != "silent" {
		t.Fatalf("expected only the silent agent to flip, got %v", flipped)
	}

	got, _ := r.GetAgent("silent")
	if got.Status != StatusOffline {
		t.Errorf("silent agent should be offline, got %s", got.Status)
	}
	got, _ = r.GetAgent("active")
	if got.Status != StatusOnline {
		t.Errorf("active agent should stay online, got %s", got.Status)
	}

	// Idempotent: a second sweep flips nothing new.
	if flipped := r.PerformHealthCheck(); len(flipped) != 0 {
		t.Errorf("second sweep should flip nothing, got %v", flipped)
	}
}

func TestSendPushNonBlocking(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(validRegistration("agent-1")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if !r.SendPush("agent-1", PushMessage{Kind: PushKindPing}) {
		t.Error("push to registered sse agent should succeed")
	}
	if r.SendPush("missing", PushMessage{Kind: PushKindPing}) {
		t.Error("push to unknown agent should miss")
	}

	// Stdio agents have no push channel.
	stdio := validRegistration("agent-2")
	stdio.Transport = TransportStdio
	if err := r.Register(stdio); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if r.SendPush("agent-2", PushMessage{Kind: PushKindPing}) {
		t.Error("push to stdio agent should miss")
	}
}

// Pushes racing the close in Unregister or Register must not land on a closed
// channel. Run with -race.
func TestSendPushConcurrentWithUnregister(t *testing.T) {
	r := newTestRegistry()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					r.SendPush("agent-1", PushMessage{Kind: PushKindPing})
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		if err := r.Register(validRegistration("agent-1")); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if i%2 == 0 {
			if err := r.Unregister("agent-1"); err != nil {
				t.Fatalf("unregister failed: %v", err)
			}
		}
	}
	close(done)
	wg.Wait()
}
