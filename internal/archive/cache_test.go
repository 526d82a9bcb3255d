package archive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"concord/api/internal/store"
)

func sampleEntries() []store.VersionEntry {
	return []store.VersionEntry{
		{ParagraphID: "par_1", Version: 2, Text: "two", FinalizedAt: time.Unix(1700000002, 0).UTC()},
		{ParagraphID: "par_1", Version: 1, Text: "one", FinalizedAt: time.Unix(1700000001, 0).UTC()},
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	cache := NewRedisCacheWithClient(client)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "arc_1"); ok {
		t.Fatalf("expected miss before set")
	}

	entries := sampleEntries()
	cache.Set(ctx, "arc_1", entries)

	got, ok := cache.Get(ctx, "arc_1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if len(got) != 2 || got[0].Version != 2 || got[1].Text != "one" {
		t.Fatalf("cached entries mismatch: %+v", got)
	}
}

func TestRedisCacheDownIsAMiss(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	cache := NewRedisCacheWithClient(client)
	ctx := context.Background()
	cache.Set(ctx, "arc_1", sampleEntries())

	server.Close()
	if _, ok := cache.Get(ctx, "arc_1"); ok {
		t.Fatalf("unreachable redis must read as a miss")
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	cache, err := NewMemoryCache(2)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	ctx := context.Background()

	cache.Set(ctx, "a", sampleEntries())
	cache.Set(ctx, "b", sampleEntries())
	cache.Set(ctx, "c", sampleEntries())

	if _, ok := cache.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if _, ok := cache.Get(ctx, "c"); !ok {
		t.Fatalf("newest entry should be present")
	}
}
