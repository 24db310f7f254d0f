package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, "")
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	thumb := "https://img/x.jpg"
	duration := 213
	in := sampleResult("https://x")
	in.Thumbnail = &thumb
	in.Duration = &duration

	if err := cache.Put(ctx, "X@US", in, time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !mr.Exists("stream:X@US") {
		t.Fatal("key should be stored under the stream: prefix")
	}

	got, ok, err := cache.Get(ctx, "X@US")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v; want hit", got, ok, err)
	}
	if got.URL != in.URL || got.Title != in.Title || got.Artist != in.Artist {
		t.Errorf("Get() = %+v, want %+v", got, in)
	}
	if got.Thumbnail == nil || *got.Thumbnail != thumb || got.Duration == nil || *got.Duration != duration {
		t.Errorf("optional fields lost: %+v", got)
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	_ = cache.Put(ctx, "X", sampleResult("https://x"), time.Minute)
	mr.FastForward(time.Minute + time.Second)

	if _, ok, err := cache.Get(ctx, "X"); ok || err != nil {
		t.Errorf("Get() after TTL = %v, %v; want miss", ok, err)
	}
}

func TestRedisCache_MissAndNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	if _, ok, err := cache.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v; want miss without error", ok, err)
	}

	_ = cache.Put(ctx, "X", sampleResult("https://x"), 0)
	if len(mr.Keys()) != 0 {
		t.Errorf("zero TTL should store nothing, keys = %v", mr.Keys())
	}
}

func TestRedisCache_ConnectionErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)
	mr.Close()

	if _, _, err := cache.Get(ctx, "X"); err == nil {
		t.Error("Get() should fail when Redis is down")
	}
}

func TestRedisCache_CorruptValue(t *testing.T) {
	ctx := context.Background()
	mr, cache := newTestRedis(t)

	if err := mr.Set("stream:X", "not json"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok, err := cache.Get(ctx, "X"); ok || err == nil {
		t.Errorf("Get() = %v, %v; want decode error", ok, err)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	_ = client.Close()

	if _, err := NewRedisClient(context.Background(), RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("NewRedisClient() should fail for an unreachable server")
	}
}
