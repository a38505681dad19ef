package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// newTestRedisStore connects to a local Redis and clears leftover test keys.
// Tests using this helper require a running Redis on localhost:6379 and are
// skipped otherwise.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	store, err := NewRedisStore("localhost:6379", 0, time.Hour)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}

	ctx := context.Background()
	cleanup := func() {
		iter := store.Client().Scan(ctx, 0, KeyPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			store.Client().Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		store.Close()
	})
	return store
}

func TestOpen_SelectsRedisWhenHostConfigured(t *testing.T) {
	// Requires a live Redis; the helper call skips otherwise.
	newTestRedisStore(t)

	store, err := Open(Options{RedisHost: "localhost", RedisPort: 6379, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*RedisStore); !ok {
		t.Fatalf("expected *RedisStore, got %T", store)
	}
	if store.Backend() != "redis" {
		t.Errorf("expected backend %q, got %q", "redis", store.Backend())
	}
}

func TestRedisStore_ReadYourWrite(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "test_s1", FlagCSVLoaded, "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, err := store.Get(ctx, "test_s1", FlagCSVLoaded, "false")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != "true" {
		t.Errorf("expected %q, got %q", "true", got)
	}
}

func TestRedisStore_DefaultForUnknownSession(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx, "test_never_written", FlagDataLoaded, "dflt")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != "dflt" {
		t.Errorf("expected default %q, got %q", "dflt", got)
	}
}

func TestRedisStore_SnapshotScenario(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "test_s2", FlagCSVLoaded, "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Set(ctx, "test_s2", FlagTPRWorkflowActive, "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	state, err := store.Snapshot(ctx, "test_s2")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if !state.CSVLoaded || !state.TPRWorkflowActive {
		t.Errorf("expected both written flags true, got %+v", state)
	}
	if state.DataLoaded || state.AnalysisComplete {
		t.Errorf("expected unwritten flags false, got %+v", state)
	}

	out, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if strings.Contains(string(out), "_permanent") || strings.Contains(string(out), "_schema") {
		t.Errorf("snapshot leaked internal markers: %s", out)
	}
}

func TestRedisStore_WriteStampsMarkersAndTTL(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "test_s3", FlagDataLoaded, "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	key := KeyPrefix + "test_s3"
	perm, err := store.Client().HGet(ctx, key, "_permanent").Result()
	if err != nil {
		t.Fatalf("HGET _permanent: %v", err)
	}
	if perm != "true" {
		t.Errorf("expected _permanent=true, got %q", perm)
	}

	ttl, err := store.Client().TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected TTL in (0, 1h], got %s", ttl)
	}
}

func TestRedisStore_DownloadLinks(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	links := []json.RawMessage{
		json.RawMessage(`{"label":"TPR report","url":"/download/tpr_report.pdf"}`),
	}
	if err := store.SetDownloadLinks(ctx, "test_s4", links); err != nil {
		t.Fatalf("SetDownloadLinks() error: %v", err)
	}

	state, err := store.Snapshot(ctx, "test_s4")
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(state.DownloadLinks) != 1 {
		t.Fatalf("expected 1 link, got %d", len(state.DownloadLinks))
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "test_s5", FlagDataLoaded, "true"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := store.Delete(ctx, "test_s5"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	exists, err := store.Client().Exists(ctx, KeyPrefix+"test_s5").Result()
	if err != nil {
		t.Fatalf("EXISTS: %v", err)
	}
	if exists != 0 {
		t.Error("expected hash removed")
	}
}
