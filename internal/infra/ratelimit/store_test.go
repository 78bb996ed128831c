package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNewStore_AlwaysReturnsStorage(t *testing.T) {
	if s := NewStore(RedisConfig{}); s == nil {
		t.Fatalf("expected non-nil memory store when redis addr empty")
	}

	if s := NewStore(RedisConfig{Addr: "127.0.0.1:1", DB: 0}); s == nil {
		t.Fatalf("expected non-nil store even with unreachable redis")
	}
}

func TestNewStore_MemoryRoundTrip(t *testing.T) {
	s := NewStore(RedisConfig{})
	if err := s.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get("k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected v, got %q (%v)", got, err)
	}
}

func TestNewStore_UsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewStore(RedisConfig{Addr: mr.Addr(), DB: 2})
	if err := s.Set("limiter", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.Select(2)
	if !mr.Exists("limiter") {
		t.Fatalf("expected limiter key in redis db 2, keys=%v", mr.Keys())
	}
}
