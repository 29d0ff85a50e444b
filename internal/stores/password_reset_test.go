package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newResetStore(t *testing.T) (*PasswordResetStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPasswordResetStore(rdb, "test"), mr
}

func TestPasswordResetSaveConsume(t *testing.T) {
	store, mr := newResetStore(t)
	ctx := context.Background()

	rec := &PasswordResetRecord{UserID: "u1", TenantID: "t1", ExpiresAt: time.Now().Add(time.Minute).UnixMilli()}
	if err := store.Save(ctx, "abc", rec, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("test:pr:abc") {
		t.Fatal("expected record under hashed key")
	}

	got, err := store.Consume(ctx, "abc")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.UserID != "u1" || got.TenantID != "t1" || got.ExpiresAt != rec.ExpiresAt {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := store.Consume(ctx, "abc"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestPasswordResetExpiresWithTTL(t *testing.T) {
	store, mr := newResetStore(t)
	ctx := context.Background()

	rec := &PasswordResetRecord{UserID: "u1", ExpiresAt: time.Now().Add(time.Minute).UnixMilli()}
	if err := store.Save(ctx, "abc", rec, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "abc"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound, got %v", err)
	}
}

func TestPasswordResetConcurrentConsume(t *testing.T) {
	store, _ := newResetStore(t)
	ctx := context.Background()

	rec := &PasswordResetRecord{UserID: "u1", ExpiresAt: time.Now().Add(time.Minute).UnixMilli()}
	if err := store.Save(ctx, "abc", rec, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "abc"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one consumer, got %d", wins.Load())
	}
}

func TestPasswordResetRedisDown(t *testing.T) {
	store, mr := newResetStore(t)
	mr.Close()

	err := store.Save(context.Background(), "abc", &PasswordResetRecord{UserID: "u1"}, time.Minute)
	if !errors.Is(err, ErrResetRedisUnavailable) {
		t.Fatalf("expected ErrResetRedisUnavailable, got %v", err)
	}
}
