package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("sentinel", 0)
	defer c.Close()

	if _, err := c.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v; want %q", got, err, "v")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("after Delete err = %v, want ErrNotFound", err)
	}
}

func TestMemory_TTLExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", 0)
	if err := c.Set(ctx, "short", "v", 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); !IsNotFound(err) {
		t.Fatalf("expected expiry, got err=%v", err)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), Config{Driver: "memcached"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
