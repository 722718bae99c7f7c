package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cryptostrat/internal/store"
	"cryptostrat/internal/store/storetest"
)

// Set TEST_REDIS_ADDR to run these tests. Each test uses its own key prefix.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())
	s, err := New(Config{Addr: addr, Prefix: prefix})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.Client().Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			s.Client().Del(ctx, keys...)
		}
		s.Close()
	})
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestStore_ListSkipsDanglingIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Upsert(ctx, storetest.Sample(t, "live", 1))
	s.Upsert(ctx, storetest.Sample(t, "gone", 2))
	s.Client().Del(ctx, s.key("gone"))

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "live" {
		t.Errorf("list: %v", list)
	}
}
