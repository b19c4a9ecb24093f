package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ticketpilot/selector"
)

func newTestSubmitter(t *testing.T) (*Submitter, selector.Store) {
	t.Helper()
	store := newTestStore(t)
	scorer := selector.NewScorer(store)
	return &Submitter{
		Runner:     &StepRunner{Scorer: scorer, Timeout: 20 * time.Millisecond},
		Scorer:     scorer,
		VerifyWait: 20 * time.Millisecond,
		VerifyPoll: time.Millisecond,
	}, store
}

func TestSubmitFirstStrategyWins(t *testing.T) {
	sub, _ := newTestSubmitter(t)
	page := newFakePage("#send")

	strategy, err := sub.Submit(context.Background(), page, []string{"#send"}, func(p Page) bool {
		return len(page.clicked) > 0
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if strategy != 1 {
		t.Fatalf("expected strategy 1, got %d", strategy)
	}
}

func TestSubmitLaterStrategiesSkippedAfterSuccess(t *testing.T) {
	sub, store := newTestSubmitter(t)

	// nothing clickable, synthetic JS click reports nothing visible, so the
	// keyboard chord (strategy 3) is the first attempt that lands
	page := newFakePage()
	formSubmitCalls := 0
	page.evalFn = func(expr string, arg interface{}) (interface{}, error) {
		if strings.Contains(expr, "f.submit()") {
			formSubmitCalls++
		}
		return false, nil
	}

	verify := func(p Page) bool {
		for _, key := range page.kb.presses {
			if key == "Enter" {
				return true
			}
		}
		return false
	}

	strategy, err := sub.Submit(context.Background(), page, []string{"#send"}, verify)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if strategy != 3 {
		t.Fatalf("expected strategy 3, got %d", strategy)
	}
	if formSubmitCalls != 0 {
		t.Fatalf("strategy 4 ran after success: %d calls", formSubmitCalls)
	}

	// strategies 1 and 2 are scored as failures, 3 as success
	stats, _ := store.Snapshot()
	for _, s := range []string{"strategy-1", "strategy-2"} {
		st := stats["submit_strategy"][s]
		if st.Attempts != 1 || st.Successes != 0 {
			t.Fatalf("%s: expected one failure, got %+v", s, st)
		}
	}
	if st := stats["submit_strategy"]["strategy-3"]; st.Successes != 1 {
		t.Fatalf("strategy-3: expected success, got %+v", st)
	}
	if st := stats["submit_strategy"]["strategy-4"]; st.Attempts != 0 {
		t.Fatalf("strategy-4 should never be scored: %+v", st)
	}
}

func TestSubmitAllStrategiesExhausted(t *testing.T) {
	sub, _ := newTestSubmitter(t)

	page := newFakePage()
	page.kb.downErr = errors.New("keyboard unavailable")
	page.evalFn = func(expr string, arg interface{}) (interface{}, error) {
		return false, nil
	}

	_, err := sub.Submit(context.Background(), page, nil, func(p Page) bool { return false })
	var failure *SubmitFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected SubmitFailure, got %v", err)
	}
	if failure.Strategies != 5 {
		t.Fatalf("expected 5 exhausted strategies, got %d", failure.Strategies)
	}
}

func TestSubmitClearsDisabledControls(t *testing.T) {
	sub, _ := newTestSubmitter(t)

	// the click target only becomes usable after strategy 5 clears the
	// disabled attribute
	page := newFakePage()
	page.evalFn = func(expr string, arg interface{}) (interface{}, error) {
		if strings.Contains(expr, "removeAttribute") {
			page.visible["#send"] = true
			return 1, nil
		}
		return false, nil
	}
	page.kb.downErr = errors.New("keyboard unavailable") // chord fails too

	verify := func(p Page) bool { return len(page.clicked) > 0 }

	strategy, err := sub.Submit(context.Background(), page, []string{"#send"}, verify)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if strategy != 5 {
		t.Fatalf("expected strategy 5, got %d", strategy)
	}
}
