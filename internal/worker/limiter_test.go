package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx, "api.openai.com"); err != nil {
			t.Fatalf("request %d held back by an unlimited limiter: %v", i, err)
		}
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	l := NewLimiter(1, 1)
	if err := l.Wait(context.Background(), "api.openai.com"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	// the next token is a second away
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "api.openai.com"); err == nil {
		t.Error("expected second request within the window to be refused")
	}

	// another host has its own budget
	if err := l.Wait(context.Background(), "localhost:11434"); err != nil {
		t.Errorf("independent host was limited: %v", err)
	}
}

func TestLimiter_Pause(t *testing.T) {
	l := NewLimiter(0, 1)
	l.Pause("api.openai.com", 50*time.Millisecond)
	l.Pause("api.openai.com", time.Millisecond)

	if d := l.PausedFor("api.openai.com"); d < 40*time.Millisecond {
		t.Errorf("a shorter pause must not cut the longer one, remaining %v", d)
	}
	if d := l.PausedFor("localhost:11434"); d != 0 {
		t.Errorf("pause leaked to another host: %v", d)
	}

	start := time.Now()
	if err := l.Wait(context.Background(), "api.openai.com"); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected wait to honour the pause, took %v", elapsed)
	}
}

func TestLimiter_PauseCancelled(t *testing.T) {
	l := NewLimiter(0, 1)
	l.Pause("api.openai.com", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "api.openai.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestEndpointKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://api.openai.com/v1", "api.openai.com"},
		{"http://LocalHost:11434/v1", "localhost:11434"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := EndpointKey(tt.in); got != tt.want {
			t.Errorf("EndpointKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
