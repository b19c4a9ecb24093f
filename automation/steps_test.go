package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketpilot/selector"
)

func newTestRunner(t *testing.T) (*StepRunner, selector.Store) {
	t.Helper()
	store := newTestStore(t)
	return &StepRunner{
		Scorer:  selector.NewScorer(store),
		Timeout: 50 * time.Millisecond,
	}, store
}

func TestFillRecordsFailuresBeforeSuccess(t *testing.T) {
	runner, store := newTestRunner(t)
	page := newFakePage("#c")
	candidates := []string{"#a", "#b", "#c"}

	sel, err := runner.Fill(context.Background(), page, "subject", candidates, "printer down")
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if sel != "#c" {
		t.Fatalf("expected #c to win, got %q", sel)
	}
	if page.filled["#c"] != "printer down" {
		t.Fatalf("value not filled: %v", page.filled)
	}

	// exactly k-1 failures and one success in the stats
	stats, _ := store.Snapshot()
	for _, failed := range []string{"#a", "#b"} {
		st := stats["subject"][failed]
		if st.Attempts != 1 || st.Successes != 0 {
			t.Fatalf("%s: expected 1 failed attempt, got %+v", failed, st)
		}
	}
	if st := stats["subject"]["#c"]; st.Attempts != 1 || st.Successes != 1 {
		t.Fatalf("#c: expected 1 successful attempt, got %+v", st)
	}
}

func TestFillExhaustionNamesFieldAndSelectors(t *testing.T) {
	runner, _ := newTestRunner(t)
	page := newFakePage() // nothing visible

	_, err := runner.Fill(context.Background(), page, "subject", []string{"#a", "#b"}, "x")
	var stepErr *StepExecutionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepExecutionError, got %v", err)
	}
	if stepErr.Field != "subject" {
		t.Fatalf("wrong field: %q", stepErr.Field)
	}
	if len(stepErr.Tried) != 2 {
		t.Fatalf("expected both selectors in Tried, got %v", stepErr.Tried)
	}
}

func TestClickUsesRanking(t *testing.T) {
	runner, store := newTestRunner(t)

	// #b has a recorded success so it outranks #a
	store.Record("open_new", "#b", true)

	page := newFakePage("#a", "#b")
	sel, err := runner.Click(context.Background(), page, "open_new", []string{"#a", "#b"})
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if sel != "#b" {
		t.Fatalf("ranking ignored: clicked %q", sel)
	}
}

func TestFillFallsBackToSameOriginIframe(t *testing.T) {
	runner, _ := newTestRunner(t)

	page := newFakePage()
	page.url = "https://desk.test/tickets/new"

	inner := newFakePage("#a")
	inner.url = "https://desk.test/widget"
	crossOrigin := newFakePage("#a")
	crossOrigin.url = "https://ads.example/frame"
	page.frames = []Frame{&fakeFrame{crossOrigin}, &fakeFrame{inner}}

	sel, err := runner.Fill(context.Background(), page, "subject", []string{"#a"}, "x")
	if err != nil {
		t.Fatalf("fill via iframe: %v", err)
	}
	if sel != "#a" || inner.filled["#a"] != "x" {
		t.Fatalf("expected same-origin iframe fill, got sel=%q inner=%v", sel, inner.filled)
	}
	if len(crossOrigin.filled) != 0 {
		t.Fatalf("cross-origin frame must not be touched: %v", crossOrigin.filled)
	}
}

func TestFillLabelTextFallback(t *testing.T) {
	runner, _ := newTestRunner(t)

	page := newFakePage("#found-by-label")
	page.evalFn = func(expr string, arg interface{}) (interface{}, error) {
		if arg == "ticket subject" {
			return "#found-by-label", nil
		}
		return nil, nil
	}

	sel, err := runner.Fill(context.Background(), page, "ticket_subject", []string{"#missing"}, "x")
	if err != nil {
		t.Fatalf("label fallback: %v", err)
	}
	if sel != "#found-by-label" {
		t.Fatalf("expected label fallback selector, got %q", sel)
	}
}

func TestFillEvalPathWhenNativeFillFails(t *testing.T) {
	runner, store := newTestRunner(t)

	page := newFakePage("#editor")
	page.fillErr["#editor"] = errors.New("element is not an <input>")
	page.evalOnFn = func(sel, expr string, arg interface{}) (interface{}, error) {
		return nil, nil
	}

	sel, err := runner.Fill(context.Background(), page, "description", []string{"#editor"}, "long text")
	if err != nil {
		t.Fatalf("eval fill: %v", err)
	}
	if sel != "#editor" {
		t.Fatalf("expected #editor, got %q", sel)
	}
	stats, _ := store.Snapshot()
	if st := stats["description"]["#editor"]; st.Successes != 1 {
		t.Fatalf("eval fill not scored as success: %+v", st)
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	runner, _ := newTestRunner(t)
	page := newFakePage("#a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runner.Fill(ctx, page, "subject", []string{"#a"}, "x"); err == nil {
		t.Fatal("expected cancellation error")
	}
}
