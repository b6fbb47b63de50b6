package engine

import (
	"context"
	"errors"
	"testing"
)

func TestCheckpoint_NoChallengePassesThrough(t *testing.T) {
	cp := quickCheckpoint(NewToken(), NewReporter(nil))
	if err := cp.Guard(context.Background(), newFakePage(), "q"); err != nil {
		t.Fatalf("Guard error = %v", err)
	}
	if _, ok := cp.Pending(); ok {
		t.Error("nothing should be pending")
	}
}

func TestCheckpoint_ResumeWithoutPending(t *testing.T) {
	cp := quickCheckpoint(NewToken(), NewReporter(nil))
	if cp.Resume() {
		t.Error("Resume() = true with nothing pending")
	}
}

func TestCheckpoint_SuspendsAndResumesOnSamePage(t *testing.T) {
	r := NewReporter(nil)
	events, cancel := r.Subscribe(16)
	defer cancel()

	cp := quickCheckpoint(NewToken(), r)
	page := newFakePage()
	page.set("#captcha", true)

	done := make(chan error, 1)
	go func() { done <- cp.Guard(context.Background(), page, "pizza berlin") }()

	waitFor(t, "pending captcha", func() bool { _, ok := cp.Pending(); return ok })

	st, _ := cp.Pending()
	if st.Page != page {
		t.Fatal("pending state must hold the original page")
	}
	if st.Marker != "#captcha" || st.Scope != "pizza berlin" {
		t.Errorf("pending = %+v", st)
	}

	page.set("#captcha", false)
	if !cp.Resume() {
		t.Fatal("Resume() = false while suspended")
	}
	if err := <-done; err != nil {
		t.Fatalf("Guard error = %v", err)
	}

	var userActions int
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventUserAction {
			userActions++
		}
	}
	if userActions != 1 {
		t.Errorf("user action events = %d, want 1", userActions)
	}
}

func TestCheckpoint_RedetectsAfterPrematureConfirm(t *testing.T) {
	r := NewReporter(nil)
	events, cancel := r.Subscribe(16)
	defer cancel()

	cp := quickCheckpoint(NewToken(), r)
	page := newFakePage()
	page.set("#captcha", true)

	done := make(chan error, 1)
	go func() { done <- cp.Guard(context.Background(), page, "q") }()

	waitFor(t, "first suspension", func() bool { _, ok := cp.Pending(); return ok })
	cp.Resume() // challenge still on screen

	userActions := 0
	waitFor(t, "second user action", func() bool {
		for len(events) > 0 {
			if ev := <-events; ev.Kind == EventUserAction {
				userActions++
			}
		}
		return userActions >= 2
	})
	waitFor(t, "second suspension", func() bool { _, ok := cp.Pending(); return ok })

	page.set("#captcha", false)
	cp.Resume()
	if err := <-done; err != nil {
		t.Fatalf("Guard error = %v", err)
	}
}

func TestCheckpoint_StopWhileSuspended(t *testing.T) {
	tok := NewToken()
	cp := quickCheckpoint(tok, NewReporter(nil))
	page := newFakePage()
	page.set("#captcha", true)

	done := make(chan error, 1)
	go func() { done <- cp.Guard(context.Background(), page, "q") }()

	waitFor(t, "pending captcha", func() bool { _, ok := cp.Pending(); return ok })
	tok.RequestStop()

	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Fatalf("Guard error = %v, want ErrStopped", err)
	}
	if _, ok := cp.Pending(); ok {
		t.Error("pending state should be cleared after stop")
	}
}
