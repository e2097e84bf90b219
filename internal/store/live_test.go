package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestLive(t *testing.T) *Live {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	l, err := NewLive(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLive_SnapshotRoundTrip(t *testing.T) {
	l := newTestLive(t)
	ctx := context.Background()

	if err := l.SaveSnapshot(ctx, "r1", map[string]string{"fen": "startpos"}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	raw, err := l.LoadSnapshot(ctx, "r1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["fen"] != "startpos" {
		t.Fatalf("unexpected snapshot: %v", got)
	}

	// unknown routes are a soft miss
	raw, err = l.LoadSnapshot(ctx, "missing")
	if err != nil || raw != nil {
		t.Fatalf("expected nil,nil for missing route, got %v %v", raw, err)
	}
}

func TestLive_UserIndexAndDelete(t *testing.T) {
	l := newTestLive(t)
	ctx := context.Background()

	if err := l.SaveSnapshot(ctx, "r1", map[string]string{"fen": "x"}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := l.IndexUser(ctx, "u1", "r1"); err != nil {
		t.Fatalf("IndexUser: %v", err)
	}
	routes, err := l.RoutesForUser(ctx, "u1")
	if err != nil || len(routes) != 1 || routes[0] != "r1" {
		t.Fatalf("RoutesForUser: %v %v", routes, err)
	}

	if err := l.Delete(ctx, "r1", "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if raw, _ := l.LoadSnapshot(ctx, "r1"); raw != nil {
		t.Fatalf("snapshot survived delete")
	}
	routes, _ = l.RoutesForUser(ctx, "u1")
	if len(routes) != 0 {
		t.Fatalf("index survived delete: %v", routes)
	}
}

func TestLive_NilIsNoOp(t *testing.T) {
	var l *Live
	ctx := context.Background()
	if err := l.SaveSnapshot(ctx, "r1", "x"); err != nil {
		t.Fatalf("nil SaveSnapshot: %v", err)
	}
	if raw, err := l.LoadSnapshot(ctx, "r1"); raw != nil || err != nil {
		t.Fatalf("nil LoadSnapshot: %v %v", raw, err)
	}
	if err := l.Delete(ctx, "r1"); err != nil {
		t.Fatalf("nil Delete: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
