package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "payment:1234")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			defer unlock()
			current := atomic.AddInt32(&active, 1)
			for {
				seen := atomic.LoadInt32(&maxActive)
				if current <= seen || atomic.CompareAndSwapInt32(&maxActive, seen, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("same key should be exclusive, max active=%d", maxActive)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("lock entries should be released, got %d", len(locker.locks))
	}
}

func TestLocalLockerDifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a failed: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait: %v", err)
	}
	unlockB()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("want ErrLockTimeout, got %v", err)
	}

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock after release failed: %v", err)
	}
	again()
}

func TestNewLockerFallsBackWithoutRedis(t *testing.T) {
	if err := InitRedis(nil); err != nil {
		t.Fatalf("init redis failed: %v", err)
	}
	if _, ok := NewLocker(time.Second).(*LocalLocker); !ok {
		t.Fatalf("expected local locker when redis is disabled")
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	if got := BuildKey(" lock:1 "); got != redisPrefix+":lock:1" {
		t.Fatalf("unexpected key: %s", got)
	}
}
