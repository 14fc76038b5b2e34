package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"bigbrother/pkg/logx"
)

func TestServiceRunsJobs(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	err := s.Start(context.Background(),
		Job{Name: "tick", Spec: "@every 1s", Run: func(ctx context.Context) error { runs.Add(1); return nil }},
		Job{Name: "off", Spec: "", Run: func(ctx context.Context) error { return nil }},
	)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	entries := s.Entries()
	if _, ok := entries["tick"]; !ok || len(entries) != 1 {
		t.Fatalf("Entries = %v, want only tick", entries)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestServiceRejectsBadSpec(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	err := s.Start(context.Background(), Job{Name: "bad", Spec: "every now and then", Run: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Fatal("Start accepted invalid spec")
	}
}

func TestServiceDisabledAndApply(t *testing.T) {
	s := New(Config{}, logx.Nop())
	job := Job{Name: "sweep", Spec: "@every 10m", Run: func(ctx context.Context) error { return nil }}
	if err := s.Start(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Entries()); n != 0 {
		t.Fatalf("disabled scheduler has %d entries", n)
	}
	if err := s.Apply(Config{Enabled: true}, job); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := s.Entries()["sweep"]; !ok {
		t.Fatal("sweep not scheduled after Apply")
	}
	if err := s.Apply(Config{Enabled: true, Timezone: "Not/AZone"}, job); err == nil {
		t.Fatal("Apply accepted bad timezone")
	}
	s.Stop(context.Background())
}
