package automation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ticketpilot/config"
	"ticketpilot/diagnostics"
)

// PageState is the outcome of classifying the page after a login attempt.
type PageState string

const (
	PageAuthenticated  PageState = "authenticated"
	PagePasscodePrompt PageState = "passcode-prompt"
	PageSSORedirect    PageState = "sso-redirect"
	PageLoginFailed    PageState = "login-failed"
)

// Button/body text that marks an identity-provider hand-off.
var ssoPatterns = []string{
	"sign in with",
	"continue with google",
	"continue with microsoft",
	"use sso",
	"single sign-on",
	"use your company account",
	"okta",
	"saml",
}

// Body text that marks a rejected credential attempt.
var loginFailurePatterns = []string{
	"incorrect password",
	"invalid credentials",
	"wrong password",
	"couldn't find your account",
	"could not find your account",
	"sign-in failed",
	"too many failed attempts",
	"verify you're not a robot",
	"captcha",
}

// URL path fragments that mean the session is still inside an auth flow.
var loginishURLParts = []string{
	"login", "signin", "sign-in", "sign_in", "verify", "mfa", "auth", "challenge", "sso",
}

// Fallback submit buttons for the passcode form.
var builtinPasscodeSubmit = []string{
	"button[type='submit']",
	"button:has-text('Verify')",
	"button:has-text('Continue')",
	"button:has-text('Submit')",
	"input[type='submit']",
}

const gotoTimeout = 30 * time.Second

// AuthFlow gets the browser session past the provider's login wall: fill
// credentials, classify what the page became, resolve passcode prompts,
// and wait out SSO hand-offs when a human can help.
type AuthFlow struct {
	Runner    *StepRunner
	Retriever *PasscodeRetriever
	Recorder  *diagnostics.Recorder
	Settings  config.Settings
}

// Authenticate opens the provider's base URL and drives the session to an
// authenticated state. It returns AutomationBlocked when the login cannot
// be completed without a human, so the caller can switch to the adapter.
func (f *AuthFlow) Authenticate(ctx context.Context, page Page, cfg *config.ProviderConfig) error {
	base := cfg.ResolvedBaseURL()
	if err := page.Goto(base, gotoTimeout); err != nil {
		return fmt.Errorf("open %s: %v", base, err)
	}
	f.settle(page)

	retries := f.Settings.LoginRetries
	if retries <= 0 {
		retries = 2
	}

	loginAttempts := 0
	// each iteration reacts to one classification; bounded by the retry
	// budget plus one pass per non-login state
	for hops := 0; hops < retries+3; hops++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("authentication cancelled: %w", err)
		}

		state := f.Classify(page, cfg)
		f.record("login_state", map[string]interface{}{"state": string(state), "url": page.URL()})

		switch state {
		case PageAuthenticated:
			if loginAttempts > 0 || hops > 0 {
				f.record("login_completed", map[string]interface{}{"attempts": loginAttempts})
			}
			return nil

		case PagePasscodePrompt:
			if err := f.resolvePasscode(ctx, page, cfg); err != nil {
				return err
			}
			f.settleLong(page)

		case PageSSORedirect:
			if err := f.waitOutSSO(page, cfg); err != nil {
				return err
			}

		case PageLoginFailed:
			if cfg.Login == nil {
				return &AutomationBlocked{Reason: "login required but no login configuration for " + cfg.Name}
			}
			if loginAttempts >= retries {
				return &AutomationBlocked{Reason: fmt.Sprintf("login failed after %d attempts", loginAttempts)}
			}
			loginAttempts++
			f.record("login_attempt", map[string]interface{}{"attempt": loginAttempts})
			if err := f.performLogin(ctx, page, cfg); err != nil {
				return err
			}
			f.settleLong(page)
		}
	}
	return &AutomationBlocked{Reason: "login did not settle into a known state"}
}

// Classify inspects the live page and decides what the login flow should do
// next. Passcode prompts win over everything else because their URLs still
// look like login URLs.
func (f *AuthFlow) Classify(page Page, cfg *config.ProviderConfig) PageState {
	body := strings.ToLower(f.bodyText(page))
	current := page.URL()

	if f.hasPasscodePrompt(page, cfg, body) {
		return PagePasscodePrompt
	}

	if host := urlHost(current); host != "" {
		for _, d := range cfg.SSODomains {
			if d != "" && strings.Contains(host, strings.ToLower(d)) {
				return PageSSORedirect
			}
		}
	}
	// hand-off buttons show up before the redirect happens
	if urlHost(current) != urlHost(cfg.ResolvedBaseURL()) {
		for _, pat := range ssoPatterns {
			if strings.Contains(body, pat) {
				return PageSSORedirect
			}
		}
	}

	for _, pat := range loginFailurePatterns {
		if strings.Contains(body, pat) {
			return PageLoginFailed
		}
	}

	// authenticated: the ticket UI is reachable, or we left the auth flow
	for _, sel := range cfg.OpenNewSelectors {
		if page.Exists(sel) {
			return PageAuthenticated
		}
	}
	if !urlLooksLoginish(current) && !f.hasLoginForm(page, cfg) {
		return PageAuthenticated
	}

	return PageLoginFailed
}

func (f *AuthFlow) hasPasscodePrompt(page Page, cfg *config.ProviderConfig, body string) bool {
	if cfg.Passcode != nil {
		for _, sel := range cfg.Passcode.Selectors {
			if page.Exists(sel) {
				return true
			}
		}
	}
	for _, sel := range builtinPasscodeSelectors {
		if page.Exists(sel) {
			for _, phrase := range passcodePhrases {
				if strings.Contains(body, phrase) {
					return true
				}
			}
			// a bare numeric input without passcode wording is not a prompt
			return false
		}
	}
	return false
}

func (f *AuthFlow) hasLoginForm(page Page, cfg *config.ProviderConfig) bool {
	if cfg.Login == nil {
		return page.Exists("input[type='password']")
	}
	for _, sel := range cfg.Login.PasswordSelectors {
		if page.Exists(sel) {
			return true
		}
	}
	return page.Exists("input[type='password']")
}

// performLogin fills credentials and clicks through. Providers that reveal
// the password field only after the email is submitted get a second pass.
func (f *AuthFlow) performLogin(ctx context.Context, page Page, cfg *config.ProviderConfig) error {
	email, password := config.CredentialsFor(cfg.Name)
	if email == "" || password == "" {
		return &AutomationBlocked{Reason: "no credentials in environment for " + cfg.Name}
	}
	lc := cfg.Login

	if _, err := f.Runner.Fill(ctx, page, "login_email", lc.EmailSelectors, email); err != nil {
		return err
	}

	if _, err := f.Runner.Fill(ctx, page, "login_password", lc.PasswordSelectors, password); err != nil {
		// two-phase login: advance past the email screen first
		if _, clickErr := f.Runner.Click(ctx, page, "login_button", lc.ButtonSelectors); clickErr != nil {
			return err
		}
		f.settle(page)
		if _, err := f.Runner.Fill(ctx, page, "login_password", lc.PasswordSelectors, password); err != nil {
			return err
		}
	}

	if _, err := f.Runner.Click(ctx, page, "login_button", lc.ButtonSelectors); err != nil {
		return err
	}
	return nil
}

// resolvePasscode fetches the one-time code, types it into the prompt and
// submits it.
func (f *AuthFlow) resolvePasscode(ctx context.Context, page Page, cfg *config.ProviderConfig) error {
	res, err := f.Retriever.Retrieve(ctx, page, cfg.Passcode)
	if err != nil {
		return err
	}

	inputs := builtinPasscodeSelectors
	submits := builtinPasscodeSubmit
	if cfg.Passcode != nil {
		if len(cfg.Passcode.Selectors) > 0 {
			inputs = dedupe(append(append([]string{}, cfg.Passcode.Selectors...), builtinPasscodeSelectors...))
		}
		if len(cfg.Passcode.SubmitSelectors) > 0 {
			submits = dedupe(append(append([]string{}, cfg.Passcode.SubmitSelectors...), builtinPasscodeSubmit...))
		}
	}

	if _, err := f.Runner.Fill(ctx, page, "passcode", inputs, res.Code); err != nil {
		return err
	}
	if _, err := f.Runner.Click(ctx, page, "passcode_submit", submits); err != nil {
		// many prompts submit on Enter
		if kbErr := page.Keyboard().Press("Enter"); kbErr != nil {
			return err
		}
	}
	f.record("passcode_submitted", map[string]interface{}{"source": res.Source})
	return nil
}

// waitOutSSO parks the run while a human completes the identity-provider
// hop, polling until the session lands back in a usable state.
func (f *AuthFlow) waitOutSSO(page Page, cfg *config.ProviderConfig) error {
	wait := time.Duration(f.Settings.SSOWaitMS) * time.Millisecond
	if wait <= 0 {
		return &AutomationBlocked{Reason: "sso redirect and manual wait disabled"}
	}
	f.record("sso_manual_wait", map[string]interface{}{"wait_ms": f.Settings.SSOWaitMS, "url": page.URL()})

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		page.WaitForTimeout(2 * time.Second)
		state := f.Classify(page, cfg)
		if state != PageSSORedirect {
			return nil
		}
	}
	return &AutomationBlocked{Reason: "sso login not completed within manual wait window"}
}

func (f *AuthFlow) bodyText(page Page) string {
	text, err := page.InnerText("body", 3*time.Second)
	if err != nil || text == "" {
		text, _ = page.Content()
	}
	return truncate(text, 300000)
}

func (f *AuthFlow) settle(page Page) {
	page.WaitForTimeout(1500 * time.Millisecond)
}

// settleLong waits out the slow navigations that follow a credential or
// passcode submission.
func (f *AuthFlow) settleLong(page Page) {
	ms := f.Settings.PostLoginWaitMS
	if ms <= 0 {
		ms = 2000
	}
	// poll in short slices so a fast redirect does not eat the whole budget
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	start := page.URL()
	for time.Now().Before(deadline) {
		page.WaitForTimeout(1 * time.Second)
		if page.URL() != start {
			page.WaitForTimeout(1500 * time.Millisecond)
			return
		}
	}
}

func (f *AuthFlow) record(event string, step map[string]interface{}) {
	if f.Recorder != nil {
		f.Recorder.Record(event, step, nil)
	}
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func urlLooksLoginish(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, part := range loginishURLParts {
		if strings.Contains(lowered, part) {
			return true
		}
	}
	return false
}
