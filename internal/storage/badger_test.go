package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func newTestBadger(t *testing.T, inMemory bool) *BadgerEngine {
	t.Helper()
	cfg := DefaultKVConfig(t.TempDir())
	cfg.Badger.GCInterval = "1h" // keep auto GC out of tests
	cfg.Badger.InMemory = inMemory

	engine, err := NewBadgerEngine(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestBadgerEngine_BasicOperations(t *testing.T) {
	engine := newTestBadger(t, false)
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := engine.Set(ctx, []byte("test-key"), []byte("test-value")); err != nil {
			t.Fatal(err)
		}
		got, err := engine.Get(ctx, []byte("test-key"))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "test-value" {
			t.Errorf("expected test-value, got %s", got)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := engine.Get(ctx, []byte("non-existent"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		key := []byte("delete-key")
		if err := engine.Set(ctx, key, []byte("v")); err != nil {
			t.Fatal(err)
		}
		if err := engine.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("SetMany", func(t *testing.T) {
		pairs := []KV{
			{Key: []byte("m/1"), Value: []byte("a")},
			{Key: []byte("m/2"), Value: []byte("b")},
		}
		if err := engine.SetMany(ctx, pairs); err != nil {
			t.Fatal(err)
		}
		for _, kv := range pairs {
			got, err := engine.Get(ctx, kv.Key)
			if err != nil || string(got) != string(kv.Value) {
				t.Errorf("Get(%s) = %s, %v", kv.Key, got, err)
			}
		}
	})
}

func TestBadgerEngine_Scan(t *testing.T) {
	engine := newTestBadger(t, true)
	ctx := context.Background()

	for i := 9; i >= 0; i-- {
		key := []byte(fmt.Sprintf("e/%02d", i))
		if err := engine.Set(ctx, key, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := engine.Set(ctx, []byte("other"), []byte("x")); err != nil {
		t.Fatal(err)
	}

	t.Run("Scan with prefix in order", func(t *testing.T) {
		var keys []string
		err := engine.Scan(ctx, []byte("e/"), func(key, value []byte) bool {
			keys = append(keys, string(key))
			return true
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 10 {
			t.Fatalf("expected 10 keys, got %d", len(keys))
		}
		for i, k := range keys {
			if want := fmt.Sprintf("e/%02d", i); k != want {
				t.Errorf("keys[%d] = %s, want %s", i, k, want)
			}
		}
	})

	t.Run("Scan with early stop", func(t *testing.T) {
		count := 0
		err := engine.Scan(ctx, []byte("e/"), func(key, value []byte) bool {
			count++
			return count < 3
		})
		if err != nil {
			t.Fatal(err)
		}
		if count != 3 {
			t.Errorf("expected 3 keys, got %d", count)
		}
	})
}

func TestBadgerEngine_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultKVConfig(dir)
	cfg.Badger.GCInterval = "1h"
	ctx := context.Background()

	engine, err := NewBadgerEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Set(ctx, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	engine, err = NewBadgerEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	got, err := engine.Get(ctx, []byte("k"))
	if err != nil || string(got) != "v" {
		t.Errorf("Get after reopen = %s, %v", got, err)
	}
}

func TestBadgerEngine_GCAndStats(t *testing.T) {
	engine := newTestBadger(t, false)
	ctx := context.Background()

	if err := engine.GC(ctx); err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastGCTime == 0 {
		t.Error("LastGCTime not recorded")
	}
}

func TestBadgerEngine_CloseTwice(t *testing.T) {
	engine := newTestBadger(t, true)
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewBadgerEngine_RequiresDir(t *testing.T) {
	if _, err := NewBadgerEngine(KVConfig{}, nil); err == nil {
		t.Error("expected error for empty dir")
	}
}
