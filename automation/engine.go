package automation

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"ticketpilot/config"
	"ticketpilot/diagnostics"
	"ticketpilot/mailbox"
	"ticketpilot/selector"
	"ticketpilot/ticket"
)

// StepInferrer produces an action plan when the intent does not carry an
// explicit one. Implementations may call an LLM or apply deterministic
// heuristics; the engine treats them as a black box.
type StepInferrer interface {
	InferSteps(ctx context.Context, intent *ticket.Intent, pageHTML string) ([]ticket.Step, error)
}

// LaunchFunc opens a browser page for one run and returns a cleanup func.
// Production wires Launcher.Launch; tests inject fakes.
type LaunchFunc func() (Page, func(), error)

// Engine is the top-level orchestrator: one call to Run drives one ticket
// through config load, login, the step loop, submission and, when the UI
// path dies, the provider's API adapter.
type Engine struct {
	Settings  config.Settings
	Providers map[string]*config.ProviderConfig
	Scorer    *selector.Scorer
	Registry  *ticket.Registry
	Inferrer  StepInferrer // optional
	Launch    LaunchFunc
	Sink      diagnostics.EventSink // optional
}

// Run executes one ticket-creation run against the named provider. The
// returned Result always states which path was taken and why; errors are
// folded into it rather than returned.
func (e *Engine) Run(ctx context.Context, provider string, intent *ticket.Intent, dryRun bool) *ticket.Result {
	runID := uuid.New().String()
	res := &ticket.Result{RunID: runID, Provider: provider}

	cfg, ok := e.Providers[provider]
	if !ok {
		res.Status = ticket.StatusFailure
		res.Path = ticket.PathTotalFailure
		res.ErrorDetail = "no configuration for provider " + provider
		return res
	}

	rec, err := diagnostics.NewRecorder(e.Settings.DiagDir, runID, e.Settings.SaveRawDiagnostics, e.Sink)
	if err != nil {
		log.Printf("⚠️ diagnostics disabled for run %s: %v", runID, err)
		rec = nil
	}
	if rec != nil {
		defer rec.Close()
	}

	plan := e.resolvePlan(cfg, intent)

	if dryRun {
		e.record(rec, "dry_run_resolved", map[string]interface{}{"provider": provider, "steps": len(plan)})
		res.Status = ticket.StatusDryRun
		res.Steps = plan
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.Settings.RunTimeoutMS)*time.Millisecond)
	defer cancel()

	page, closePage, err := e.Launch()
	if err != nil {
		e.record(rec, "browser_launch_failed", map[string]interface{}{"error": truncate(err.Error(), 400)})
		return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathFallbackOnly)
	}
	defer closePage()
	defer e.snapshot(rec, page, provider)

	runner := &StepRunner{
		Scorer:   e.Scorer,
		Recorder: rec,
		Timeout:  time.Duration(e.Settings.StepTimeoutMS) * time.Millisecond,
	}
	auth := &AuthFlow{
		Runner:    runner,
		Retriever: e.retriever(rec),
		Recorder:  rec,
		Settings:  e.Settings,
	}

	if err := auth.Authenticate(runCtx, page, cfg); err != nil {
		log.Printf("❌ %s: authentication did not complete: %v", provider, err)
		e.record(rec, "auth_abandoned", map[string]interface{}{"error": truncate(err.Error(), 400)})
		return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathFallbackOnly)
	}

	// the form work starts here: failures from now on are ui-then-fallback
	if len(cfg.OpenNewSelectors) > 0 {
		if _, err := runner.Click(runCtx, page, "open_new", cfg.OpenNewSelectors); err != nil {
			e.record(rec, "open_new_failed", map[string]interface{}{"error": truncate(err.Error(), 400)})
			return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
		}
		page.WaitForTimeout(1 * time.Second)
	}

	if len(plan) == 0 && e.Inferrer != nil {
		html, _ := page.Content()
		inferred, err := e.Inferrer.InferSteps(runCtx, intent, html)
		if err != nil {
			log.Printf("⚠️ step inference failed, using field-map plan: %v", err)
		} else {
			plan = inferred
		}
	}
	if len(plan) == 0 {
		plan = defaultPlan(cfg, intent)
	}

	submitted := false
	for _, step := range plan {
		if err := runCtx.Err(); err != nil {
			res.ErrorDetail = "run deadline exceeded"
			return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
		}

		switch step.Action {
		case ticket.ActionWait:
			ms := step.WaitMS
			if ms <= 0 {
				ms = 1000
			}
			page.WaitForTimeout(time.Duration(ms) * time.Millisecond)
			continue

		case ticket.ActionClick:
			if step.Field == "submit" {
				if err := e.submit(runCtx, page, cfg, runner, rec); err != nil {
					res.ErrorDetail = err.Error()
					return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
				}
				submitted = true
				continue
			}
			if _, err := runner.Click(runCtx, page, step.Field, cfg.Fields[step.Field]); err != nil {
				if step.Optional {
					e.record(rec, "optional_step_skipped", map[string]interface{}{"field": step.Field})
					continue
				}
				res.ErrorDetail = err.Error()
				return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
			}

		case ticket.ActionFill:
			value := step.Value
			if value == "" {
				value = intent.FieldValue(step.Field)
			}
			if _, err := runner.Fill(runCtx, page, step.Field, cfg.Fields[step.Field], value); err != nil {
				if step.Optional {
					e.record(rec, "optional_step_skipped", map[string]interface{}{"field": step.Field})
					continue
				}
				res.ErrorDetail = err.Error()
				return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
			}
		}
	}

	if !submitted {
		if err := e.submit(runCtx, page, cfg, runner, rec); err != nil {
			res.ErrorDetail = err.Error()
			return e.delegate(runCtx, cfg, intent, rec, res, ticket.PathUIThenFallback)
		}
	}

	log.Printf("✅ %s: ticket created through the UI (run %s)", provider, runID)
	res.Status = ticket.StatusSuccess
	res.Path = ticket.PathUISuccess
	res.Steps = plan
	return res
}

// submit finalizes the form, verifying by URL change or a success selector.
func (e *Engine) submit(ctx context.Context, page Page, cfg *config.ProviderConfig, runner *StepRunner, rec *diagnostics.Recorder) error {
	before := page.URL()
	verify := func(p Page) bool {
		if p.URL() != before {
			return true
		}
		for _, sel := range cfg.SuccessSelectors {
			if p.Exists(sel) {
				return true
			}
		}
		return false
	}

	sub := &Submitter{Runner: runner, Scorer: e.Scorer, Recorder: rec}
	strategy, err := sub.Submit(ctx, page, cfg.SubmitSelectors, verify)
	if err != nil {
		return err
	}
	log.Printf("📤 %s: submitted via strategy %d", cfg.Name, strategy)
	return nil
}

// delegate hands the intent to the fallback adapter and folds the outcome
// into the result. One shot; its answer is final.
func (e *Engine) delegate(ctx context.Context, cfg *config.ProviderConfig, intent *ticket.Intent, rec *diagnostics.Recorder, res *ticket.Result, path string) *ticket.Result {
	res.Path = path

	orch := &FallbackOrchestrator{Registry: e.Registry, Recorder: rec}
	adapterRes, err := orch.Delegate(ctx, cfg, intent)
	if err != nil {
		log.Printf("❌ %s: fallback failed: %v", cfg.Name, err)
		res.Status = ticket.StatusFailure
		res.Path = ticket.PathTotalFailure
		if res.ErrorDetail == "" {
			res.ErrorDetail = err.Error()
		} else {
			res.ErrorDetail += "; fallback: " + err.Error()
		}
		return res
	}

	log.Printf("✅ %s: ticket %s created through the adapter", cfg.Name, adapterRes.TicketID)
	res.Status = ticket.StatusFallbackSuccess
	res.TicketID = adapterRes.TicketID
	return res
}

// resolvePlan returns the intent's explicit steps when present. The plan is
// copied so the engine owns its sequence for the run.
func (e *Engine) resolvePlan(cfg *config.ProviderConfig, intent *ticket.Intent) []ticket.Step {
	if intent == nil || len(intent.Steps) == 0 {
		return nil
	}
	plan := make([]ticket.Step, len(intent.Steps))
	copy(plan, intent.Steps)
	return plan
}

// defaultPlan fills every configured field the intent has a value for, in
// a fixed order so runs are reproducible.
func defaultPlan(cfg *config.ProviderConfig, intent *ticket.Intent) []ticket.Step {
	order := []string{"subject", "description", "priority", "requester_email", "requester_name"}
	seen := map[string]bool{}
	var plan []ticket.Step
	add := func(field string) {
		if seen[field] {
			return
		}
		seen[field] = true
		if _, ok := cfg.Fields[field]; !ok {
			return
		}
		if intent.FieldValue(field) == "" {
			return
		}
		optional := field != "subject" && field != "description"
		plan = append(plan, ticket.Step{Action: ticket.ActionFill, Field: field, Optional: optional})
	}
	for _, f := range order {
		add(f)
	}
	extra := make([]string, 0, len(intent.Fields))
	for f := range intent.Fields {
		extra = append(extra, f)
	}
	sort.Strings(extra)
	for _, f := range extra {
		add(f)
	}
	return plan
}

func (e *Engine) retriever(rec *diagnostics.Recorder) *PasscodeRetriever {
	var mb mailbox.Mailbox
	if e.Settings.Mailbox.User != "" {
		mb = &mailbox.IMAPMailbox{
			Addr:     e.Settings.Mailbox.Addr(),
			User:     e.Settings.Mailbox.User,
			Password: e.Settings.Mailbox.Password,
			Folder:   e.Settings.Mailbox.Folder,
		}
	}
	return &PasscodeRetriever{
		Mailbox:  mb,
		Recorder: rec,
		Interval: time.Duration(e.Settings.Mailbox.PollIntervalS) * time.Second,
		Deadline: time.Duration(e.Settings.Mailbox.PollTimeoutS) * time.Second,
	}
}

func (e *Engine) snapshot(rec *diagnostics.Recorder, page Page, provider string) {
	if rec == nil {
		return
	}
	html, _ := page.Content()
	shot, _ := page.Screenshot()
	rec.SaveSnapshot(provider, html, shot)
}

func (e *Engine) record(rec *diagnostics.Recorder, event string, step map[string]interface{}) {
	if rec != nil {
		rec.Record(event, step, nil)
	}
}
