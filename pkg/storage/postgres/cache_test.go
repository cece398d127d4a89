package postgres

import (
	"context"
	"testing"

	"github.com/kellnr/kellnr/pkg/index"
)

func TestPrefetchCache_SetGet(t *testing.T) {
	c, err := NewPrefetchCache(4, nil)
	if err != nil {
		t.Fatalf("NewPrefetchCache: %v", err)
	}

	ctx := context.Background()
	p := index.Prefetch{Etag: "abc", LastModified: "2020-01-01 00:00:00", Body: []byte("line")}
	c.Set(ctx, "tokio", p)

	got, ok := c.Get(ctx, "tokio")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Etag != p.Etag {
		t.Errorf("etag = %q, want %q", got.Etag, p.Etag)
	}
}

func TestPrefetchCache_Miss(t *testing.T) {
	c, err := NewPrefetchCache(4, nil)
	if err != nil {
		t.Fatalf("NewPrefetchCache: %v", err)
	}

	if _, ok := c.Get(context.Background(), "does-not-exist"); ok {
		t.Fatal("expected cache miss")
	}
}

func TestPrefetchCache_Invalidate(t *testing.T) {
	c, err := NewPrefetchCache(4, nil)
	if err != nil {
		t.Fatalf("NewPrefetchCache: %v", err)
	}

	ctx := context.Background()
	c.Set(ctx, "serde", index.Prefetch{Etag: "x"})
	c.Invalidate(ctx, "serde")

	if _, ok := c.Get(ctx, "serde"); ok {
		t.Fatal("expected cache miss after invalidate")
	}
}

func TestPrefetchCache_DefaultSize(t *testing.T) {
	c, err := NewPrefetchCache(0, nil)
	if err != nil {
		t.Fatalf("NewPrefetchCache: %v", err)
	}
	if c.l1.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.l1.Len())
	}
}
