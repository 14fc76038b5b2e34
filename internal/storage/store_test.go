package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	logx "bigbrother/pkg/logx"
)

type openFn func(t *testing.T) Store

func drivers(t *testing.T) map[string]openFn {
	t.Helper()
	return map[string]openFn{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store.json")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
		"sqlite": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			// empty reads are not errors
			docs, err := st.Find(ctx, "guildChannels", Filter{"tenantId": "g1"})
			if err != nil || len(docs) != 0 {
				t.Fatalf("Find(empty) = %v, %v; want [], nil", docs, err)
			}
			if _, ok, err := st.FindOne(ctx, "guildChannels", Filter{"tenantId": "g1"}); ok || err != nil {
				t.Fatalf("FindOne(empty) ok=%v err=%v", ok, err)
			}

			// upsert creates with filter fields
			if err := st.Upsert(ctx, "guildChannels", Filter{"tenantId": "g1"}, Doc{"loggingChannelId": "c1"}); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			d, ok, err := st.FindOne(ctx, "guildChannels", Filter{"tenantId": "g1"})
			if err != nil || !ok {
				t.Fatalf("FindOne: ok=%v err=%v", ok, err)
			}
			if d["tenantId"] != "g1" || d["loggingChannelId"] != "c1" {
				t.Fatalf("doc = %v", d)
			}

			// upsert again updates in place, null survives round trip
			if err := st.Upsert(ctx, "guildChannels", Filter{"tenantId": "g1"}, Doc{"loggingChannelId": nil}); err != nil {
				t.Fatalf("Upsert(nil): %v", err)
			}
			docs, err = st.Find(ctx, "guildChannels", Filter{"tenantId": "g1"})
			if err != nil || len(docs) != 1 {
				t.Fatalf("Find = %v, %v; want exactly one doc", docs, err)
			}
			if v, present := docs[0]["loggingChannelId"]; !present || v != nil {
				t.Fatalf("loggingChannelId = %v (present=%v), want null", v, present)
			}

			// tables are isolated
			if docs, _ := st.Find(ctx, "stats", Filter{"tenantId": "g1"}); len(docs) != 0 {
				t.Fatalf("stats leaked docs: %v", docs)
			}

			// increment creates and accumulates
			for i := 0; i < 3; i++ {
				if err := st.Increment(ctx, "stats", Filter{"key": "logJSON_invocations"}, map[string]float64{"value": 1}); err != nil {
					t.Fatalf("Increment: %v", err)
				}
			}
			d, _, _ = st.FindOne(ctx, "stats", Filter{"key": "logJSON_invocations"})
			if d["value"] != float64(3) {
				t.Fatalf("value = %v, want 3", d["value"])
			}

			// increment on a non-numeric field fails
			_ = st.Upsert(ctx, "stats", Filter{"key": "bad"}, Doc{"value": "x"})
			if err := st.Increment(ctx, "stats", Filter{"key": "bad"}, map[string]float64{"value": 1}); !errors.Is(err, ErrNotNumeric) {
				t.Fatalf("Increment(non-numeric) err = %v, want ErrNotNumeric", err)
			}

			// delete
			n, err := st.Delete(ctx, "guildChannels", Filter{"tenantId": "g1"})
			if err != nil || n != 1 {
				t.Fatalf("Delete = %d, %v; want 1, nil", n, err)
			}
			if docs, _ := st.Find(ctx, "guildChannels", nil); len(docs) != 0 {
				t.Fatalf("after delete: %v", docs)
			}
		})
	}
}

func TestStoreConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := st.Increment(ctx, "stats", Filter{"key": "k"}, map[string]float64{"value": 1}); err != nil {
						t.Errorf("Increment: %v", err)
					}
				}()
			}
			wg.Wait()
			d, _, _ := st.FindOne(ctx, "stats", Filter{"key": "k"})
			if d["value"] != float64(20) {
				t.Fatalf("value = %v, want 20", d["value"])
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = st.Upsert(ctx, "guildChannels", Filter{"tenantId": "g1"}, Doc{"loggingChannelId": "c1"})
	_ = st.Upsert(ctx, "guildChannels", Filter{"tenantId": "g2"}, Doc{"loggingChannelId": "c2"})
	_, _ = st.Delete(ctx, "guildChannels", Filter{"tenantId": "g2"})
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	docs, err := st.Find(ctx, "guildChannels", nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 1 || docs[0]["loggingChannelId"] != "c1" {
		t.Fatalf("docs = %v, want only g1", docs)
	}
}

func TestFilterString(t *testing.T) {
	tests := []struct {
		f    Filter
		want string
	}{
		{nil, ""},
		{Filter{"b": "2", "a": "1"}, "a=1&b=2"},
		{Filter{"k": "x&y=z"}, `k=x\&y\=z`},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Fatalf("Filter(%v).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("Open(mongo) err = nil, want error")
	}
}
