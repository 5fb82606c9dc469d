package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRepo(t *testing.T) *RedisRepo {
	t.Helper()

	mr := miniredis.RunT(t)

	repo, err := New(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(repo.Close)

	return repo
}

func TestMarkResetConsumedFirstWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.MarkResetConsumed(ctx, "hash-a", time.Minute)
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if !first {
		t.Fatalf("first consume should win")
	}

	second, err := repo.MarkResetConsumed(ctx, "hash-a", time.Minute)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if second {
		t.Fatalf("second consume must lose")
	}

	other, err := repo.MarkResetConsumed(ctx, "hash-b", time.Minute)
	if err != nil {
		t.Fatalf("other mark: %v", err)
	}
	if !other {
		t.Fatalf("distinct token must be independently consumable")
	}
}
