package session

import (
	"context"
	"testing"
	"time"
)

func TestOpen_FileBackendWhenNoHost(t *testing.T) {
	store, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}
	if store.Backend() != "file" {
		t.Errorf("expected backend %q, got %q", "file", store.Backend())
	}
}

func TestOpen_FallsBackWhenRedisUnreachable(t *testing.T) {
	// Port 1 is never a Redis; the connect must fail and degrade to the
	// file backend without raising.
	store, err := Open(Options{
		RedisHost: "127.0.0.1",
		RedisPort: 1,
		Dir:       t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Open() must not fail on unreachable redis, got: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected fallback to *FileStore, got %T", store)
	}
}

func TestOptions_Addr(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{"no host", Options{}, ""},
		{"host with default port", Options{RedisHost: "cache"}, "cache:6379"},
		{"host with explicit port", Options{RedisHost: "cache", RedisPort: 6380}, "cache:6380"},
	}
	for _, tc := range cases {
		if got := tc.opts.Addr(); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestBoolHelpers(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	// Default applies when nothing was written.
	v, err := GetBool(ctx, store, "s1", FlagAnalysisComplete, true)
	if err != nil {
		t.Fatalf("GetBool() error: %v", err)
	}
	if !v {
		t.Error("expected default true")
	}

	if err := SetBool(ctx, store, "s1", FlagAnalysisComplete, false); err != nil {
		t.Fatalf("SetBool() error: %v", err)
	}
	v, err = GetBool(ctx, store, "s1", FlagAnalysisComplete, true)
	if err != nil {
		t.Fatalf("GetBool() error: %v", err)
	}
	if v {
		t.Error("expected written false to win over default true")
	}
}

// Guard against the connect timeout being accidentally removed: an
// unreachable host must fail fast enough for startup fallback to be usable.
func TestOpen_FallbackIsPrompt(t *testing.T) {
	start := time.Now()
	store, err := Open(Options{RedisHost: "127.0.0.1", RedisPort: 1, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	store.Close()
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("fallback took %s", elapsed)
	}
}
