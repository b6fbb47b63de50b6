package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestToken_StopIsMonotonic(t *testing.T) {
	tok := NewToken()
	if tok.IsStopRequested() {
		t.Fatal("new token should not be stopped")
	}

	tok.RequestStop()
	tok.RequestStop()
	if !tok.IsStopRequested() {
		t.Fatal("token should be stopped after RequestStop")
	}

	select {
	case <-tok.Done():
	default:
		t.Fatal("Done should be closed after RequestStop")
	}
}

func TestToken_ResetRearms(t *testing.T) {
	tok := NewToken()
	tok.RequestStop()
	tok.Reset()

	if tok.IsStopRequested() {
		t.Fatal("token should be clear after Reset")
	}
	select {
	case <-tok.Done():
		t.Fatal("Done should be open after Reset")
	default:
	}
}

func TestToken_SleepWakesOnStop(t *testing.T) {
	tok := NewToken()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.RequestStop()
	}()

	start := time.Now()
	err := tok.Sleep(context.Background(), 5*time.Second)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Sleep error = %v, want ErrStopped", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Sleep did not wake promptly on stop")
	}
}

func TestToken_SleepHonoursContext(t *testing.T) {
	tok := NewToken()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tok.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep error = %v, want context.Canceled", err)
	}
}

func TestToken_SleepCompletes(t *testing.T) {
	tok := NewToken()
	if err := tok.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep error = %v", err)
	}
}
