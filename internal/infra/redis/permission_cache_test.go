package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

type stubModules struct {
	modules map[string][]string
	err     error
	calls   int
}

func (s *stubModules) LoadRoleModules(_ context.Context, userID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.modules[userID], nil
}

func TestPermissionCacheStoresSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &stubModules{modules: map[string][]string{"u1": {"TakeQuiz", "SearchQuiz"}}}
	cache := NewPermissionCache(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	ok, err := cache.IsAllowed(ctx, "u1", "TakeQuiz")
	if err != nil || !ok {
		t.Fatalf("expected allowed, ok=%v err=%v", ok, err)
	}
	ok, err = cache.IsAllowed(ctx, "u1", "DeleteQuiz")
	if err != nil || ok {
		t.Fatalf("expected denied, ok=%v err=%v", ok, err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one load, got %d", loader.calls)
	}
	members, err := mr.Members("permissions:u1")
	if err != nil || len(members) != 3 {
		t.Fatalf("unexpected set members %v err=%v", members, err)
	}
}

func TestPermissionCacheRemembersEmptyRole(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &stubModules{modules: map[string][]string{}}
	cache := NewPermissionCache(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := cache.IsAllowed(ctx, "nobody", "TakeQuiz"); ok {
			t.Fatalf("expected denied")
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected empty role cached, loads=%d", loader.calls)
	}

	if err := cache.Invalidate(ctx, "nobody"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.IsAllowed(ctx, "nobody", "TakeQuiz")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loads=%d", loader.calls)
	}
}

func TestPermissionCacheLoaderError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	boom := errors.New("db down")
	cache := NewPermissionCache(newClient(mr), &stubModules{err: boom}, time.Minute)
	if _, err := cache.IsAllowed(context.Background(), "u1", "TakeQuiz"); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("permissions:u1") {
		t.Fatalf("failed load should not be cached")
	}
}
