// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// recorder captures Fatalf without stopping the goroutine, so helper
// failures can be asserted.
type recorder struct {
	failed  bool
	message string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	if got := RequireReceive(t, ch, time.Second, "value"); got != 42 {
		t.Errorf("RequireReceive = %d, want 42", got)
	}
}

func TestRequireClosed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	RequireClosed(t, ch, time.Second, "closed channel")
}

func TestRequireNoReceive(t *testing.T) {
	RequireNoReceive(t, make(chan int), 10*time.Millisecond, "silent channel")

	ch := make(chan int, 1)
	ch <- 1
	r := &recorder{}
	RequireNoReceive(r, ch, time.Second, "busy channel")
	if !r.failed {
		t.Error("RequireNoReceive did not fail on a delivered value")
	}
}

func TestEventually(t *testing.T) {
	var counter atomic.Int32
	go func() {
		for range 3 {
			counter.Add(1)
		}
	}()
	Eventually(t, 5*time.Second, func() bool { return counter.Load() == 3 }, "counter reaches 3")

	r := &recorder{}
	Eventually(r, 20*time.Millisecond, func() bool { return false }, "never %s", "true")
	if !r.failed {
		t.Fatal("Eventually did not fail")
	}
	if want := "condition not met after 20ms: never true"; r.message != want {
		t.Errorf("message = %q, want %q", r.message, want)
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		args []any
		want string
	}{
		{nil, "(no message)"},
		{[]any{"plain"}, "plain"},
		{[]any{7}, "7"},
		{[]any{"peer %s attempt %d", "ab", 2}, "peer ab attempt 2"},
	}
	for _, tt := range tests {
		if got := formatMessage(tt.args); got != tt.want {
			t.Errorf("formatMessage(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
