package seating

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestMemoryLockerSerializesPerEvent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "wedding")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "wedding"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while lock is held, got %v", err)
	}

	other, err := locker.Lock(ctx, "other-wedding")
	if err != nil {
		t.Fatalf("expected other event to lock independently: %v", err)
	}
	other()

	unlock()
	unlock()

	again, err := locker.Lock(ctx, "wedding")
	if err != nil {
		t.Fatalf("expected lock to be free after unlock: %v", err)
	}
	again()
}

func TestMemoryLockerHandsOverToWaiter(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "wedding")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		next, err := locker.Lock(waitCtx, "wedding")
		if err == nil {
			next()
		}
		acquired <- err
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()

	if err := <-acquired; err != nil {
		t.Fatalf("expected waiter to acquire the lock, got %v", err)
	}
}

// fakeRedis keeps lock keys without expiry and runs the locker's scripts by
// hash.
type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	refreshes int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha1 {
	case refreshScript.Hash():
		f.refreshes++
	case releaseScript.Hash():
		delete(f.values, keys[0])
	default:
		return redis.NewCmdResult(nil, errors.New("unknown script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("not supported"))
}

func (f *fakeRedis) EvalRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("not supported"))
}

func (f *fakeRedis) EvalShaRO(_ context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("not supported"))
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeRedis) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeRedis) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func (f *fakeRedis) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = "someone-else"
}

func TestRedisLockerRenewsUntilUnlock(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	locker := NewRedisLocker(client, 30*time.Millisecond, zerolog.Nop())

	unlock, err := locker.Lock(ctx, "wedding")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if got := client.refreshCount(); got < 2 {
		t.Fatalf("expected the lock to be renewed while held, got %d renewals", got)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "wedding"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second holder to time out, got %v", err)
	}

	unlock()
	unlock()
	if client.held(lockKey("wedding")) {
		t.Fatalf("expected lock key to be released")
	}

	renewed := client.refreshCount()
	time.Sleep(60 * time.Millisecond)
	if got := client.refreshCount(); got != renewed {
		t.Fatalf("expected renewals to stop after unlock, got %d more", got-renewed)
	}
}

func TestRedisLockerStopsRenewingLostLock(t *testing.T) {
	client := newFakeRedis()
	locker := NewRedisLocker(client, 30*time.Millisecond, zerolog.Nop())

	unlock, err := locker.Lock(context.Background(), "wedding")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	client.steal(lockKey("wedding"))

	time.Sleep(60 * time.Millisecond)
	unlock()

	if !client.held(lockKey("wedding")) {
		t.Fatalf("expected release to leave another holder's lock in place")
	}
	if got := client.refreshCount(); got != 0 {
		t.Fatalf("expected no renewals of a lost lock, got %d", got)
	}
}
