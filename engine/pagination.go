package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Card is one extractable item on the current page. Key is its natural
// identity (e.g. the displayed name) and is used to skip items a re-render
// shows again.
type Card struct {
	Key   string
	Index int
	Ref   any
}

// Source is a list-and-detail surface driven by Loop.
type Source[R any] interface {
	// Cards lists the items currently extractable on the page.
	Cards(ctx context.Context) ([]Card, error)

	// Extract turns one card into a record. It returns either a complete
	// record or an error, never a partial record.
	Extract(ctx context.Context, card Card) (R, error)

	// Advance moves to more content (next page, scroll, expand). It returns
	// false when there is no next control or it did not advance.
	Advance(ctx context.Context) (bool, error)
}

// StopReason records why a Loop ended.
type StopReason string

const (
	StopCancelled     StopReason = "cancelled"
	StopMaxRecords    StopReason = "max_records"
	StopNoGrowth      StopReason = "no_growth"
	StopNoNext        StopReason = "no_next"
	StopAdvanceFailed StopReason = "advance_failed"
	StopFetchFailed   StopReason = "fetch_failed"
	StopMaxIterations StopReason = "max_iterations"
)

// LoopConfig bounds a Loop.
type LoopConfig struct {
	// MaxRecords stops the loop once this many records were extracted. 0 = unbounded.
	MaxRecords int

	// MaxIterations is a hard cap on FETCH_PAGE rounds. 0 defaults to 500.
	MaxIterations int

	// Settle is the pause after every advance so the DOM is re-rendered
	// before the next read.
	Settle time.Duration

	// Scope names the target in status events.
	Scope string
}

// LoopResult is what a Loop produced.
type LoopResult[R any] struct {
	Records    []R
	Iterations int
	Failed     int
	Reason     StopReason
}

// Loop drives FETCH_PAGE → PROCESS_CARD* → ADVANCE → FETCH_PAGE | DONE.
//
// Termination is checked at the top of every round in this order:
// cancellation, MaxRecords, no growth in the card count since the previous
// round, then (after processing) a failed or impossible advance.
type Loop[R any] struct {
	cfg      LoopConfig
	source   Source[R]
	token    *Token
	reporter *Reporter

	// Guard, when set, runs after every successful advance (CAPTCHA check).
	Guard func(ctx context.Context) error

	// OnRecord, when set, observes every appended record.
	OnRecord func(R)
}

// NewLoop creates a Loop over source.
func NewLoop[R any](cfg LoopConfig, source Source[R], token *Token, reporter *Reporter) *Loop[R] {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 500
	}
	return &Loop[R]{cfg: cfg, source: source, token: token, reporter: reporter}
}

// Run executes the loop. It returns an error only when the very first page
// cannot be read or a guard fails for a reason other than a stop; every
// per-card failure is reported and skipped. Records gathered before a stop
// are always returned.
func (l *Loop[R]) Run(ctx context.Context) (LoopResult[R], error) {
	var res LoopResult[R]
	seen := make(map[string]struct{})
	prevCount := -1

	for {
		switch {
		case l.token.IsStopRequested():
			res.Reason = StopCancelled
			return res, nil
		case l.full(&res):
			res.Reason = StopMaxRecords
			return res, nil
		case res.Iterations >= l.cfg.MaxIterations:
			res.Reason = StopMaxIterations
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// FETCH_PAGE
		cards, err := l.source.Cards(ctx)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				res.Reason = StopCancelled
				return res, nil
			}
			if res.Iterations == 0 {
				return res, fmt.Errorf("list items: %w", err)
			}
			l.reporter.Failure(l.cfg.Scope+": list items", err)
			res.Reason = StopFetchFailed
			return res, nil
		}
		res.Iterations++
		if len(cards) == prevCount {
			res.Reason = StopNoGrowth
			return res, nil
		}
		prevCount = len(cards)

		// PROCESS_CARD*
		for _, card := range cards {
			if l.token.IsStopRequested() {
				res.Reason = StopCancelled
				return res, nil
			}
			if l.full(&res) {
				res.Reason = StopMaxRecords
				return res, nil
			}
			if _, dup := seen[card.Key]; dup {
				continue
			}
			seen[card.Key] = struct{}{}

			rec, err := l.source.Extract(ctx, card)
			if err != nil {
				if errors.Is(err, ErrStopped) {
					res.Reason = StopCancelled
					return res, nil
				}
				res.Failed++
				l.reporter.Failure(fmt.Sprintf("%s: item %q", l.cfg.Scope, card.Key), err)
				continue
			}
			res.Records = append(res.Records, rec)
			if l.OnRecord != nil {
				l.OnRecord(rec)
			}
		}

		// ADVANCE
		if l.token.IsStopRequested() {
			res.Reason = StopCancelled
			return res, nil
		}
		if l.full(&res) {
			res.Reason = StopMaxRecords
			return res, nil
		}
		advanced, err := l.source.Advance(ctx)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				res.Reason = StopCancelled
				return res, nil
			}
			l.reporter.Failure(l.cfg.Scope+": advance", err)
			res.Reason = StopAdvanceFailed
			return res, nil
		}
		if !advanced {
			res.Reason = StopNoNext
			return res, nil
		}
		if err := l.token.Sleep(ctx, l.cfg.Settle); err != nil {
			if errors.Is(err, ErrStopped) {
				res.Reason = StopCancelled
				return res, nil
			}
			return res, err
		}
		if l.Guard != nil {
			if err := l.Guard(ctx); err != nil {
				if errors.Is(err, ErrStopped) {
					res.Reason = StopCancelled
					return res, nil
				}
				return res, err
			}
		}
	}
}

func (l *Loop[R]) full(res *LoopResult[R]) bool {
	return l.cfg.MaxRecords > 0 && len(res.Records) >= l.cfg.MaxRecords
}
