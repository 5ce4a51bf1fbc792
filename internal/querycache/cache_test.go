package querycache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hox/hox/internal/vcs"
)

func TestCache_PutThenGet(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatalf("unexpected error opening cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	records := []vcs.Record{{ChangeID: "c1"}, {ChangeID: "c2"}}

	if err := c.Put(ctx, "heads(bookmarks(glob:\"task/*\"))", "op1", records); err != nil {
		t.Fatalf("unexpected error on Put: %v", err)
	}

	got, ok, err := c.Get(ctx, "heads(bookmarks(glob:\"task/*\"))", "op1")
	if err != nil {
		t.Fatalf("unexpected error on Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if len(got) != 2 || got[0].ChangeID != "c1" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestCache_MissAtDifferentPosition(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "ready()", "op1", []vcs.Record{{ChangeID: "c1"}}); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get(ctx, "ready()", "op2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss at a different oplog position")
	}
}

func TestCache_PutEvictsStalePositionForSameExpression(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "ready()", "op1", []vcs.Record{{ChangeID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "ready()", "op2", []vcs.Record{{ChangeID: "c2"}}); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get(ctx, "ready()", "op1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected the stale op1 entry to have been evicted once op2 was cached")
	}

	got, ok, err := c.Get(ctx, "ready()", "op2")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || len(got) != 1 || got[0].ChangeID != "c2" {
		t.Fatalf("expected the fresh op2 entry, got ok=%v records=%+v", ok, got)
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "ready()", "op1", []vcs.Record{{ChangeID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := c.Get(ctx, "ready()", "op1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no entries after InvalidateAll")
	}
}
