package core

import (
	"testing"
	"time"

	"pkt.systems/ait/schema"
)

func TestSuggestionCacheDisabled(t *testing.T) {
	for _, ttl := range []time.Duration{0, -1} {
		cache := NewSuggestionCache(ttl)
		if cache != nil {
			t.Fatalf("ttl %v: expected nil cache", ttl)
		}
		cache.set("p1", 1, "g", []schema.CommandSuggestion{{Cmd: "git"}})
		if _, ok := cache.get("p1", 1, "g"); ok {
			t.Fatalf("ttl %v: nil cache returned a hit", ttl)
		}
		cache.Invalidate("p1")
		cache.Close()
	}
}

func TestSuggestionCacheInvalidatesOneProfile(t *testing.T) {
	cache := NewSuggestionCache(time.Minute)
	defer cache.Close()
	value := []schema.CommandSuggestion{{Cmd: "git status", Frequency: 2}}
	cache.set("p1", 1, "git", value)
	cache.set("p1", 10, "git", value)
	cache.set("p10", 1, "git", value)

	if got, ok := cache.get("p1", 1, "git"); !ok || got[0].Cmd != "git status" {
		t.Fatalf("expected cached value, got %v %v", got, ok)
	}
	if _, ok := cache.get("p1", 5, "git"); ok {
		t.Fatalf("limit is part of the key")
	}

	cache.Invalidate("p1")
	if _, ok := cache.get("p1", 1, "git"); ok {
		t.Fatalf("expected p1 entries dropped")
	}
	if _, ok := cache.get("p1", 10, "git"); ok {
		t.Fatalf("expected every p1 limit dropped")
	}
	if _, ok := cache.get("p10", 1, "git"); !ok {
		t.Fatalf("invalidating p1 must keep p10")
	}
}

func TestSuggestionCacheExpires(t *testing.T) {
	cache := NewSuggestionCache(20 * time.Millisecond)
	defer cache.Close()
	cache.set("p1", 1, "l", []schema.CommandSuggestion{{Cmd: "ls"}})
	time.Sleep(60 * time.Millisecond)
	if _, ok := cache.get("p1", 1, "l"); ok {
		t.Fatalf("expected entry to expire")
	}
}
