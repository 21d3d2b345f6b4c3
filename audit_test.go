package medauth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditSinkReceivesLoginEvent(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngineWithSink(t, sink)
	ctx := WithClientIP(context.Background(), "198.51.100.33")

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	if _, err := env.engine.Login(ctx, "john", "p@ss1234"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventLogin {
				continue
			}
			if !ev.Success {
				t.Fatal("login event marked failed")
			}
			if ev.IP != "198.51.100.33" {
				t.Fatalf("IP = %q", ev.IP)
			}
			if ev.UserID == "" || ev.SessionID == "" {
				t.Fatalf("event missing identity: %+v", ev)
			}
			for _, v := range ev.Metadata {
				if v == "p@ss1234" {
					t.Fatal("password leaked into audit metadata")
				}
			}
			return
		case <-deadline:
			t.Fatal("no login audit event received")
		}
	}
}

func TestAuditFailedLoginCarriesErrorCode(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngineWithSink(t, sink)
	ctx := context.Background()

	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")
	_, _ = env.engine.Login(ctx, "john", "wrong-pass")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventLogin || ev.Success {
				continue
			}
			if ev.Error == "" {
				t.Fatal("failed login event has no error code")
			}
			if ev.Error == "wrong-pass" {
				t.Fatal("raw password leaked as error code")
			}
			return
		case <-deadline:
			t.Fatal("no failed login audit event received")
		}
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	env := newTestEngine(t)

	// Flows run fine without a dispatcher and nothing counts as dropped.
	verifiedPatient(t, env, "john@x.com", "john", "p@ss1234")

	if env.engine.AuditDropped() != 0 {
		t.Fatalf("AuditDropped = %d without a dispatcher", env.engine.AuditDropped())
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(sink, 1, true)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	// One event parks in the sink, one fills the buffer.
	d.Emit(context.Background(), AuditEvent{EventType: "e1"})
	d.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("emit blocked with DropIfFull set")
	}

	waitFor(t, 2*time.Second, func() bool { return d.Dropped() >= 1 })
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(sink, 1, false)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), AuditEvent{EventType: "e1"})
	d.Emit(context.Background(), AuditEvent{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Emit(ctx, AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not honor context cancellation")
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(sink, 16, false)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("delivered = %d, want 10", got)
	}

	// Emit after close is a silent no-op.
	d.Emit(context.Background(), AuditEvent{EventType: "late"})
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("delivered after close = %d, want 10", got)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestEngineWithSink(t *testing.T, sink AuditSink) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMemoryAccountStore()
	mail := newRecordingMailer()

	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mail).
		WithJWTSecret([]byte("0123456789abcdef0123456789abcdef")).
		WithAuditSink(sink).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, redis: mr, store: store, mail: mail}
}
