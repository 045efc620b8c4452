package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestLock(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestDrainLock_AcquireAndRelease(t *testing.T) {
	client, _ := setupTestLock(t)
	ctx := context.Background()

	lock := NewDrainLock(client, time.Minute)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("fresh lock should be acquirable")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Released lock is acquirable again.
	acquired, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !acquired {
		t.Error("released lock should be acquirable")
	}
}

func TestDrainLock_MutualExclusion(t *testing.T) {
	client, _ := setupTestLock(t)
	ctx := context.Background()

	first := NewDrainLock(client, time.Minute)
	second := NewDrainLock(client, time.Minute)

	if acquired, _ := first.Acquire(ctx); !acquired {
		t.Fatal("first instance should acquire")
	}
	if acquired, _ := second.Acquire(ctx); acquired {
		t.Error("second instance must not acquire a held lock")
	}
}

func TestDrainLock_ReleaseOnlyFreesOwnLock(t *testing.T) {
	client, _ := setupTestLock(t)
	ctx := context.Background()

	holder := NewDrainLock(client, time.Minute)
	other := NewDrainLock(client, time.Minute)

	if acquired, _ := holder.Acquire(ctx); !acquired {
		t.Fatal("holder should acquire")
	}

	// A non-holder's release must not free the holder's lock.
	if err := other.Release(ctx); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if acquired, _ := other.Acquire(ctx); acquired {
		t.Error("lock should still be held after a non-holder release")
	}
}

func TestDrainLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestLock(t)
	ctx := context.Background()

	crashed := NewDrainLock(client, time.Second)
	if acquired, _ := crashed.Acquire(ctx); !acquired {
		t.Fatal("should acquire")
	}

	// Holder crashes without releasing; the TTL frees the queue.
	mr.FastForward(2 * time.Second)

	successor := NewDrainLock(client, time.Second)
	if acquired, _ := successor.Acquire(ctx); !acquired {
		t.Error("lock should expire after its TTL")
	}
}
