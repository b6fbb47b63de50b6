package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakePage is an in-memory Page whose matching selectors can be toggled.
type fakePage struct {
	mu      sync.Mutex
	present map[string]bool
	checks  int
}

func newFakePage() *fakePage {
	return &fakePage{present: make(map[string]bool)}
}

func (p *fakePage) HasElement(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	return p.present[selector], nil
}

func (p *fakePage) set(selector string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present[selector] = on
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func quickCheckpoint(tok *Token, r *Reporter) *Checkpoint {
	return NewCheckpoint(CheckpointConfig{
		Markers:      []string{"#captcha"},
		PollTimeout:  10 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	}, tok, r)
}
