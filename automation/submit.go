package automation

import (
	"context"
	"fmt"
	"time"

	"ticketpilot/diagnostics"
	"ticketpilot/selector"
)

// Built-in submit candidates appended after the configured ones, covering
// the button shapes ticket UIs actually ship.
var builtinSubmitSelectors = []string{
	"button:has-text('Submit as New')",
	"button:has-text('Submit')",
	"button:has-text('Save')",
	"button[type='submit']",
	"input[type='submit']",
	"button:has-text('Create')",
	"button[aria-label='Submit']",
}

// jsClickSubmitJS dispatches a synthetic click on the first visible
// submit-like element.
const jsClickSubmitJS = `() => {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && el.offsetParent !== null;
	};
	const candidates = document.querySelectorAll(
		"button[type='submit'], input[type='submit'], button, a[role='button']");
	for (const el of candidates) {
		const txt = (el.innerText || el.value || '').toLowerCase();
		const submitLike = el.type === 'submit' || /submit|save|create|send/.test(txt);
		if (submitLike && isVisible(el)) {
			el.click();
			return true;
		}
	}
	return false;
}`

const formSubmitJS = `() => {
	const f = document.querySelector('form');
	if (f) { try { f.submit(); return true; } catch (e) { return false; } }
	return false;
}`

const clearDisabledJS = `(sel) => {
	let cleared = 0;
	for (const el of document.querySelectorAll(sel)) {
		if (el.hasAttribute('disabled')) { el.removeAttribute('disabled'); cleared++; }
		if (el.getAttribute('aria-disabled') === 'true') { el.setAttribute('aria-disabled', 'false'); cleared++; }
	}
	return cleared;
}`

// VerifyFunc reports whether submission took effect. The engine's default
// checks for a URL change or a configured success selector.
type VerifyFunc func(page Page) bool

// Submitter tries independent submission strategies in fixed priority order
// until the verification predicate confirms success.
type Submitter struct {
	Runner     *StepRunner
	Scorer     *selector.Scorer
	Recorder   *diagnostics.Recorder
	VerifyWait time.Duration // how long to poll the predicate per strategy
	VerifyPoll time.Duration
}

const submitStrategies = 5

// Submit runs the strategy ladder. It returns the 1-based index of the
// strategy that succeeded; the index is also recorded in the selector stats
// for ranking tuning.
func (s *Submitter) Submit(ctx context.Context, page Page, submitSelectors []string, verify VerifyFunc) (int, error) {
	candidates := dedupe(append(append([]string{}, submitSelectors...), builtinSubmitSelectors...))

	for idx := 1; idx <= submitStrategies; idx++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("submit cancelled: %w", err)
		}

		attempted := s.strategy(ctx, page, idx, candidates)
		if attempted && s.pollVerify(page, verify) {
			s.record("submit_strategy_succeeded", map[string]interface{}{"strategy": idx}, nil)
			s.Scorer.Record("submit_strategy", fmt.Sprintf("strategy-%d", idx), true)
			return idx, nil
		}
		s.record("submit_strategy_failed", map[string]interface{}{"strategy": idx}, nil)
		s.Scorer.Record("submit_strategy", fmt.Sprintf("strategy-%d", idx), false)
	}

	return 0, &SubmitFailure{Strategies: submitStrategies}
}

// strategy performs one attempt and reports whether anything was actually
// dispatched to the page.
func (s *Submitter) strategy(ctx context.Context, page Page, idx int, candidates []string) bool {
	switch idx {
	case 1: // ranked clicks over configured + built-in selectors
		_, err := s.Runner.Click(ctx, page, "submit", candidates)
		return err == nil

	case 2: // synthetic JS click on the first visible submit-like element
		res, err := page.Evaluate(jsClickSubmitJS, nil)
		clicked, _ := res.(bool)
		return err == nil && clicked

	case 3: // platform submit chord on the focused form
		kb := page.Keyboard()
		if err := kb.Down("Control"); err == nil {
			kb.Press("Enter")
			kb.Up("Control")
			return true
		}
		return kb.Press("Enter") == nil

	case 4: // native form submission
		res, err := page.Evaluate(formSubmitJS, nil)
		submitted, _ := res.(bool)
		return err == nil && submitted

	case 5: // clear disabling attributes, then retry the click ladder
		page.Evaluate(clearDisabledJS, "button[disabled], input[type='submit'][disabled], [aria-disabled='true']")
		_, err := s.Runner.Click(ctx, page, "submit", candidates)
		return err == nil
	}
	return false
}

func (s *Submitter) pollVerify(page Page, verify VerifyFunc) bool {
	if verify == nil {
		return true
	}
	wait := s.VerifyWait
	if wait <= 0 {
		wait = 3 * time.Second
	}
	poll := s.VerifyPoll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.Now().Add(wait)
	for {
		if verify(page) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		page.WaitForTimeout(poll)
	}
}

func (s *Submitter) record(event string, step, extra map[string]interface{}) {
	if s.Recorder != nil {
		s.Recorder.Record(event, step, extra)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
