package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_BurstThenBlock(t *testing.T) {
	l := NewLimiter("test", 60) // 1 rps, burst 6

	for i := 0; i < 6; i++ {
		if !l.Allow() {
			t.Fatalf("Request %d should fit in burst", i+1)
		}
	}
	if l.Allow() {
		t.Error("Request beyond burst should be rejected")
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter("test", 1)
	if !l.Allow() {
		t.Fatal("First request should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Expected wait to fail before the next token")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter("test", 0)
	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLimiter("test", 1).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
