package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "relay"))
	log.Info("delivered", Int("n", 2), Err(errors.New("x")), Strings("missing", []string{"a"}))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line not JSON: %q", buf.String())
	}
	if m["comp"] != "relay" || m["message"] != "delivered" || m["n"] != float64(2) {
		t.Fatalf("fields = %v", m)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger not IsZero")
	}
	l.Error("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "WARN", " info "} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}

func TestFormatOperatorLine(t *testing.T) {
	got := formatOperatorLine([]byte(`{"level":"warn","message":"missing permissions","guild_id":"1","time":"t","comp":"relay"}`))
	want := "[WARN] missing permissions\n- comp=relay\n- guild_id=1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := formatOperatorLine([]byte("not json \n")); got != "not json" {
		t.Fatalf("raw = %q", got)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
	ch   chan struct{}
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, text)
	f.mu.Unlock()
	f.ch <- struct{}{}
	return nil
}

func TestOperatorSinkFiltersByLevel(t *testing.T) {
	fs := &fakeSender{ch: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Console:  false,
		Operator: OperatorConfig{Enabled: true, ChatID: 42, MinLevel: "warn", RatePerSec: 10},
	}, fs)
	defer svc.Close()

	log.Info("routine")
	log.Warn("channel repaired", String("guild_id", "g"))

	select {
	case <-fs.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("operator message not sent")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.msgs) != 1 || !strings.HasPrefix(fs.msgs[0], "[WARN] channel repaired") {
		t.Fatalf("msgs = %q", fs.msgs)
	}
}
