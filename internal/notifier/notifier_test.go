package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/models"
)

type mockNotifier struct {
	name   string
	sent   []*models.CandidateAlert
	err    error
	closed bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(ctx context.Context, alert *models.CandidateAlert) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, alert)
	return nil
}

func (m *mockNotifier) Close() error {
	m.closed = true
	return nil
}

func testAlert() *models.CandidateAlert {
	payload := models.AlertPayload{
		ProductName: "driftwatch",
		SignalType:  models.SignalDenialRate,
		EntityLabel: "acme-health/cardiology",
		Severity:    0.8,
	}
	return models.NewCandidateAlert("tenant-a", "rule-1", "signal-1", "fp-1", payload)
}

func unlimited() RateLimitConfig {
	return RateLimitConfig{Enabled: false}
}

func TestDispatchToAllChannels(t *testing.T) {
	d := NewDispatcherWithRateLimit(unlimited())
	a := &mockNotifier{name: "a"}
	b := &mockNotifier{name: "b"}
	d.Register(a)
	d.Register(b)

	if err := d.Dispatch(context.Background(), testAlert()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts: a=%d b=%d, want 1 each", len(a.sent), len(b.sent))
	}
}

func TestDispatchAggregatesErrors(t *testing.T) {
	d := NewDispatcherWithRateLimit(unlimited())
	good := &mockNotifier{name: "good"}
	bad := &mockNotifier{name: "bad", err: errors.New("boom")}
	d.Register(good)
	d.Register(bad)

	err := d.Dispatch(context.Background(), testAlert())
	if err == nil {
		t.Fatal("expected error from failing channel")
	}
	// The healthy channel still got the alert.
	if len(good.sent) != 1 {
		t.Errorf("good channel sent %d, want 1", len(good.sent))
	}
}

func TestDispatchRateLimited(t *testing.T) {
	d := NewDispatcherWithRateLimit(RateLimitConfig{MaxPerWindow: 2, Window: time.Hour, Enabled: true})
	n := &mockNotifier{name: "n"}
	d.Register(n)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := d.Dispatch(ctx, testAlert()); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if err := d.Dispatch(ctx, testAlert()); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third dispatch = %v, want ErrRateLimited", err)
	}
	if len(n.sent) != 2 {
		t.Errorf("sent %d, want 2", len(n.sent))
	}
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcherWithRateLimit(unlimited())
	n := &mockNotifier{name: "n"}
	d.Register(n)

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !n.closed {
		t.Error("notifier not closed")
	}
	if _, ok := d.Get("n"); ok {
		t.Error("notifier still registered after close")
	}
}

func TestLogNotifierSend(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	if err := n.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n.Name() != "log" {
		t.Errorf("name = %q", n.Name())
	}
}
