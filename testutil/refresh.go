package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

// RefreshCounter counts redraw requests
type RefreshCounter struct {
	n atomic.Int64
}

// Func returns the callback to hand to the editor
func (r *RefreshCounter) Func() func() {
	return func() { r.n.Add(1) }
}

// Count returns how many redraws were requested
func (r *RefreshCounter) Count() int {
	return int(r.n.Load())
}

// WaitForRefresh polls until at least n redraws were requested
func WaitForRefresh(t *testing.T, r *RefreshCounter, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Count() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d refreshes within %v, got %d", n, timeout, r.Count())
}
