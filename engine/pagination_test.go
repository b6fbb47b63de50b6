package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// scriptedSource replays a fixed sequence of card lists. The last list is
// repeated once the script runs out, like a page that stopped loading.
type scriptedSource struct {
	pages     [][]string
	round     int
	fail      map[string]bool
	noNextAt  int // Advance returns false on this round (1-based); 0 = never
	advErr    error
	cardsErr  error
	onExtract func(key string)
	extracted []string
}

func (s *scriptedSource) Cards(context.Context) ([]Card, error) {
	if s.cardsErr != nil {
		return nil, s.cardsErr
	}
	idx := s.round
	if idx >= len(s.pages) {
		idx = len(s.pages) - 1
	}
	s.round++
	cards := make([]Card, len(s.pages[idx]))
	for i, k := range s.pages[idx] {
		cards[i] = Card{Key: k, Index: i}
	}
	return cards, nil
}

func (s *scriptedSource) Extract(_ context.Context, c Card) (string, error) {
	s.extracted = append(s.extracted, c.Key)
	if s.onExtract != nil {
		s.onExtract(c.Key)
	}
	if s.fail[c.Key] {
		return "", errors.New("detail panel did not load")
	}
	return "rec-" + c.Key, nil
}

func (s *scriptedSource) Advance(context.Context) (bool, error) {
	if s.advErr != nil {
		return false, s.advErr
	}
	if s.noNextAt > 0 && s.round >= s.noNextAt {
		return false, nil
	}
	return true, nil
}

// growingSource always shows more cards than last time and always has a next.
type growingSource struct{ round int }

func (g *growingSource) Cards(context.Context) ([]Card, error) {
	g.round++
	cards := make([]Card, g.round*3)
	for i := range cards {
		cards[i] = Card{Key: fmt.Sprint(i), Index: i}
	}
	return cards, nil
}

func (g *growingSource) Extract(_ context.Context, c Card) (string, error) { return c.Key, nil }
func (g *growingSource) Advance(context.Context) (bool, error) { return true, nil }

func runLoop[R any](t *testing.T, src Source[R], cfg LoopConfig, tok *Token) LoopResult[R] {
	t.Helper()
	if tok == nil {
		tok = NewToken()
	}
	res, err := NewLoop(cfg, src, tok, NewReporter(nil)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	return res
}

func TestLoop_StopsAtFixedPoint(t *testing.T) {
	src := &scriptedSource{pages: [][]string{
		{"a", "b"},
		{"a", "b", "c", "d"},
		{"a", "b", "c", "d"},
	}}
	res := runLoop[string](t, src, LoopConfig{}, nil)

	if diff := cmp.Diff([]string{"rec-a", "rec-b", "rec-c", "rec-d"}, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Reason != StopNoGrowth {
		t.Errorf("reason = %s, want %s", res.Reason, StopNoGrowth)
	}
}

func TestLoop_TerminatesWhenNextNeverDisappears(t *testing.T) {
	src := &scriptedSource{pages: [][]string{{"a", "b", "c"}}}
	res := runLoop[string](t, src, LoopConfig{}, nil)

	if res.Reason != StopNoGrowth {
		t.Errorf("reason = %s, want %s", res.Reason, StopNoGrowth)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
}

func TestLoop_MaxRecordsBoundsEndlessGrowth(t *testing.T) {
	res := runLoop[string](t, &growingSource{}, LoopConfig{MaxRecords: 7}, nil)

	if len(res.Records) != 7 {
		t.Fatalf("records = %d, want 7", len(res.Records))
	}
	if res.Reason != StopMaxRecords {
		t.Errorf("reason = %s, want %s", res.Reason, StopMaxRecords)
	}
}

func TestLoop_MaxIterationsGuard(t *testing.T) {
	res := runLoop[string](t, &growingSource{}, LoopConfig{MaxIterations: 4}, nil)
	if res.Reason != StopMaxIterations || res.Iterations != 4 {
		t.Errorf("reason = %s after %d iterations", res.Reason, res.Iterations)
	}
}

func TestLoop_ItemFailureDoesNotStopLoop(t *testing.T) {
	r := NewReporter(nil)
	events, cancel := r.Subscribe(8)
	defer cancel()

	src := &scriptedSource{
		pages:    [][]string{{"a", "b", "c"}},
		fail:     map[string]bool{"b": true},
		noNextAt: 1,
	}
	res, err := NewLoop[string](LoopConfig{Scope: "q"}, src, NewToken(), r).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if diff := cmp.Diff([]string{"rec-a", "rec-c"}, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
	if res.Reason != StopNoNext {
		t.Errorf("reason = %s, want %s", res.Reason, StopNoNext)
	}
	if len(events) == 0 {
		t.Error("item failure must produce a status event")
	}
}

func TestLoop_SkipsAlreadySeenCards(t *testing.T) {
	src := &scriptedSource{
		pages:    [][]string{{"a", "b"}, {"b", "c", "a"}},
		noNextAt: 2,
	}
	res := runLoop[string](t, src, LoopConfig{}, nil)

	if diff := cmp.Diff([]string{"a", "b", "c"}, src.extracted); diff != "" {
		t.Errorf("extract calls mismatch (-want +got):\n%s", diff)
	}
	if len(res.Records) != 3 {
		t.Errorf("records = %d, want 3", len(res.Records))
	}
}

func TestLoop_StopKeepsCompletedRecord(t *testing.T) {
	tok := NewToken()
	src := &scriptedSource{pages: [][]string{{"a", "b", "c", "d"}}}
	src.onExtract = func(key string) {
		if key == "b" {
			tok.RequestStop()
		}
	}
	res := runLoop[string](t, src, LoopConfig{}, tok)

	if diff := cmp.Diff([]string{"rec-a", "rec-b"}, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if res.Reason != StopCancelled {
		t.Errorf("reason = %s, want %s", res.Reason, StopCancelled)
	}
}

func TestLoop_AdvanceFailureKeepsRecords(t *testing.T) {
	src := &scriptedSource{
		pages:  [][]string{{"a"}},
		advErr: errors.New("next button detached"),
	}
	res := runLoop[string](t, src, LoopConfig{}, nil)
	if res.Reason != StopAdvanceFailed || len(res.Records) != 1 {
		t.Errorf("reason = %s, records = %d", res.Reason, len(res.Records))
	}
}

func TestLoop_FirstPageErrorIsTargetError(t *testing.T) {
	src := &scriptedSource{pages: [][]string{{}}, cardsErr: errors.New("feed not found")}
	_, err := NewLoop[string](LoopConfig{}, src, NewToken(), NewReporter(nil)).Run(context.Background())
	if err == nil {
		t.Fatal("expected error for unreadable first page")
	}
}

func TestLoop_GuardRunsAfterAdvance(t *testing.T) {
	src := &scriptedSource{pages: [][]string{{"a"}, {"a", "b"}}}
	calls := 0
	loop := NewLoop[string](LoopConfig{}, src, NewToken(), NewReporter(nil))
	loop.Guard = func(context.Context) error {
		calls++
		if calls == 2 {
			return ErrStopped
		}
		return nil
	}
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if calls != 2 || res.Reason != StopCancelled {
		t.Errorf("guard calls = %d, reason = %s", calls, res.Reason)
	}
	if len(res.Records) != 2 {
		t.Errorf("records = %d, want 2", len(res.Records))
	}
}
