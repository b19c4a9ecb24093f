package automation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ticketpilot/diagnostics"
	"ticketpilot/selector"
)

// fillEventsJS nudges reactive frameworks that ignore programmatic fills:
// re-dispatch input/change/blur after the value is set, and handle
// contenteditable targets that Fill cannot reach.
const fillEventsJS = `(el, v) => {
	if (el.isContentEditable) el.innerText = v;
	else if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') el.value = v;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	el.dispatchEvent(new Event('blur', {bubbles: true}));
}`

// labelLookupJS finds a control by visible label or placeholder text
// containing the logical field name, returning a usable selector or null.
const labelLookupJS = `(needle) => {
	needle = needle.toLowerCase();
	for (const lbl of document.querySelectorAll('label')) {
		const txt = (lbl.innerText || '').trim().toLowerCase();
		if (!txt || !txt.includes(needle)) continue;
		const forAttr = lbl.getAttribute('for');
		if (forAttr) return '#' + CSS.escape(forAttr);
		const ctl = lbl.querySelector('input, textarea, select, div[contenteditable="true"]');
		if (ctl && ctl.id) return '#' + CSS.escape(ctl.id);
	}
	for (const ctl of document.querySelectorAll('input[placeholder], textarea[placeholder], input[aria-label]')) {
		const hint = ((ctl.getAttribute('placeholder') || '') + ' ' + (ctl.getAttribute('aria-label') || '')).toLowerCase();
		if (hint.includes(needle)) {
			if (ctl.id) return '#' + CSS.escape(ctl.id);
			if (ctl.name) return ctl.tagName.toLowerCase() + '[name="' + ctl.name + '"]';
		}
	}
	return null;
}`

// frameTimeout caps per-candidate waits inside iframes, which are swept
// only after every top-level candidate failed.
const frameTimeout = 2 * time.Second

// StepRunner executes one logical fill or click against ranked selector
// candidates, with iframe and label-text fallbacks. Every attempt, success
// or failure, is scored and logged.
type StepRunner struct {
	Scorer   *selector.Scorer
	Recorder *diagnostics.Recorder
	Timeout  time.Duration // per-candidate
}

type action struct {
	name  string
	fill  bool
	value string
}

// Fill resolves the field's best candidate and types value into it.
// It returns the selector that worked.
func (r *StepRunner) Fill(ctx context.Context, page Page, field string, candidates []string, value string) (string, error) {
	return r.run(ctx, page, field, candidates, action{name: "fill", fill: true, value: value})
}

// Click resolves the field's best candidate and clicks it.
func (r *StepRunner) Click(ctx context.Context, page Page, field string, candidates []string) (string, error) {
	return r.run(ctx, page, field, candidates, action{name: "click"})
}

func (r *StepRunner) run(ctx context.Context, page Page, field string, candidates []string, act action) (string, error) {
	ranked := r.Scorer.Rank(field, candidates)
	tried := make([]string, 0, len(ranked)+1)

	// top-level page, rank order
	for _, sel := range ranked {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("step %s %q cancelled: %w", act.name, field, err)
		}
		tried = append(tried, sel)
		if r.attempt(page, field, sel, act, r.Timeout) {
			return sel, nil
		}
	}

	// same-origin iframes, once the top level is exhausted
	origin := pageOrigin(page.URL())
	for _, frame := range page.Frames() {
		if pageOrigin(frame.URL()) != origin {
			continue
		}
		for _, sel := range ranked {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("step %s %q cancelled: %w", act.name, field, err)
			}
			if r.attemptSurface(frame, field, sel, act, frameTimeout, "iframe") {
				return sel, nil
			}
		}
	}

	// label / placeholder text fallback
	if sel := r.findByLabel(page, field); sel != "" {
		tried = append(tried, sel)
		if r.attempt(page, field, sel, act, r.Timeout) {
			r.record("label_fallback_used", map[string]interface{}{"field": field, "selector": sel}, nil)
			return sel, nil
		}
	}

	return "", &StepExecutionError{Field: field, Tried: tried}
}

func (r *StepRunner) attempt(page Page, field, sel string, act action, timeout time.Duration) bool {
	return r.attemptSurface(page, field, sel, act, timeout, "page")
}

func (r *StepRunner) attemptSurface(s Surface, field, sel string, act action, timeout time.Duration, where string) bool {
	step := map[string]interface{}{"field": field, "selector": sel, "surface": where}

	if err := s.WaitFor(sel, timeout); err != nil {
		r.record(act.name+"_selector_timeout", step, nil)
		r.Scorer.Record(field, sel, false)
		return false
	}

	var err error
	if act.fill {
		err = s.Fill(sel, act.value, timeout)
		if err != nil {
			// JS assignment path for contenteditable and stubborn widgets
			if _, evalErr := s.EvalOnSelector(sel, fillEventsJS, act.value); evalErr == nil {
				r.record("fill_success_eval", step, nil)
				r.Scorer.Record(field, sel, true)
				return true
			}
		} else {
			// settle reactive listeners
			s.EvalOnSelector(sel, fillEventsJS, act.value)
		}
	} else {
		err = s.Click(sel, timeout)
	}

	if err != nil {
		r.record(act.name+"_attempt_failed", step, map[string]interface{}{"error": truncate(err.Error(), 400)})
		r.Scorer.Record(field, sel, false)
		return false
	}

	r.record(act.name+"_success", step, nil)
	r.Scorer.Record(field, sel, true)
	return true
}

func (r *StepRunner) findByLabel(page Page, field string) string {
	needle := strings.ReplaceAll(field, "_", " ")
	res, err := page.Evaluate(labelLookupJS, needle)
	if err != nil {
		return ""
	}
	sel, _ := res.(string)
	return sel
}

func (r *StepRunner) record(event string, step, extra map[string]interface{}) {
	if r.Recorder != nil {
		r.Recorder.Record(event, step, extra)
	}
}

func pageOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
