package automation

import (
	"context"
	"regexp"
	"time"

	"ticketpilot/config"
	"ticketpilot/diagnostics"
	"ticketpilot/mailbox"
	"ticketpilot/ticket"
)

// Retriever states.
type RetrieverState string

const (
	StateIdle            RetrieverState = "idle"
	StatePollingMailbox  RetrieverState = "polling-mailbox"
	StatePollingWebInbox RetrieverState = "polling-web-inbox"
	StateFound           RetrieverState = "found"
	StateTimedOut        RetrieverState = "timed-out"
)

// Built-in passcode input candidates, appended after configured ones.
var builtinPasscodeSelectors = []string{
	"input[type='tel']",
	"input[type='text'][inputmode='numeric']",
	"input[name*='code']",
	"input[id*='code']",
	"input[name*='otp']",
	"input[id*='otp']",
	"input[placeholder*='code']",
	"input[placeholder*='OTP']",
	"input[aria-label*='code']",
}

// Body phrases that indicate a passcode prompt even when no known input
// selector matches.
var passcodePhrases = []string{
	"enter the code",
	"enter the passcode",
	"verification code",
	"one-time code",
	"we sent a code",
	"verify you",
}

// clickSubjectJS clicks the first inbox row whose text matches the subject
// pattern, opening the message so the code lands in the page text.
const clickSubjectJS = `(pattern) => {
	const re = new RegExp(pattern, 'i');
	for (const n of document.querySelectorAll('a,div,span,td,tr')) {
		const txt = (n.innerText || '').trim();
		if (txt && re.test(txt)) {
			n.scrollIntoView({block: 'center'});
			n.click();
			return true;
		}
	}
	return false;
}`

// PasscodeRetriever obtains a one-time code, preferring the mailbox channel
// and falling back to scraping a webmail inbox page in the same browser
// context. Both channels share mailbox.ExtractCode so a code parses the
// same everywhere.
type PasscodeRetriever struct {
	Mailbox  mailbox.Mailbox // nil disables the mailbox channel
	Recorder *diagnostics.Recorder
	Interval time.Duration
	Deadline time.Duration

	state RetrieverState
}

// State returns the retriever's last state, for diagnostics.
func (p *PasscodeRetriever) State() RetrieverState {
	if p.state == "" {
		return StateIdle
	}
	return p.state
}

// Retrieve runs the channel state machine until a code is found or the
// deadline passes.
func (p *PasscodeRetriever) Retrieve(ctx context.Context, page Page, pc *config.PasscodeConfig) (*ticket.PasscodeResult, error) {
	subjectPattern, codePattern := "", ""
	inboxURL := ""
	if pc != nil {
		subjectPattern, codePattern, inboxURL = pc.SubjectRegex, pc.CodeRegex, pc.InboxURL
	}
	subjectRe, codeRe, err := mailbox.CompilePatterns(subjectPattern, codePattern)
	if err != nil {
		// validated at config load; only defaults reach here otherwise
		p.state = StateTimedOut
		return nil, &PasscodePromptError{Deadline: p.Deadline}
	}

	interval := p.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	// each channel gets its own deadline window so a mailbox that times
	// out does not starve the webmail fallback
	if p.Mailbox != nil {
		deadline := time.Now().Add(p.Deadline)
		p.state = StatePollingMailbox
		p.record("passcode_fetch_attempted", map[string]interface{}{"method": "mailbox"})
		for time.Now().Before(deadline) {
			msgs, err := p.Mailbox.FetchRecent(ctx, 50)
			if err != nil {
				// connection or credential failure: switch channels
				p.record("passcode_mailbox_error", map[string]interface{}{"error": truncate(err.Error(), 400)})
				break
			}
			for _, msg := range msgs {
				if code, ok := mailbox.ExtractCode(subjectRe, codeRe, msg.Subject, msg.Body); ok {
					p.state = StateFound
					p.record("passcode_fetched", map[string]interface{}{"source": "mailbox"})
					return &ticket.PasscodeResult{Code: code, Source: "mailbox"}, nil
				}
			}
			select {
			case <-ctx.Done():
				p.state = StateTimedOut
				return nil, &PasscodePromptError{Deadline: p.Deadline}
			case <-time.After(interval):
			}
		}
	}

	if inboxURL != "" && page != nil {
		deadline := time.Now().Add(p.Deadline)
		p.state = StatePollingWebInbox
		p.record("passcode_fetch_attempted", map[string]interface{}{"method": "webmail"})
		for time.Now().Before(deadline) {
			if code, ok := p.scrapeWebInbox(page, inboxURL, subjectRe, codeRe); ok {
				p.state = StateFound
				p.record("passcode_fetched", map[string]interface{}{"source": "webmail"})
				return &ticket.PasscodeResult{Code: code, Source: "webmail"}, nil
			}
			select {
			case <-ctx.Done():
				p.state = StateTimedOut
				return nil, &PasscodePromptError{Deadline: p.Deadline}
			case <-time.After(interval):
			}
		}
	}

	p.state = StateTimedOut
	p.record("passcode_fetch_failed", nil)
	return nil, &PasscodePromptError{Deadline: p.Deadline}
}

// scrapeWebInbox opens the inbox in a second page of the same context,
// clicks the first matching message and extracts the code from the page
// text. The page text doubles as the subject for the shared extraction,
// since webmail renders subjects inline.
func (p *PasscodeRetriever) scrapeWebInbox(page Page, inboxURL string, subjectRe, codeRe *regexp.Regexp) (string, bool) {
	inbox, err := page.OpenPage()
	if err != nil {
		p.record("passcode_webmail_error", map[string]interface{}{"error": truncate(err.Error(), 400)})
		return "", false
	}
	defer inbox.Close()

	if err := inbox.Goto(inboxURL, 20*time.Second); err != nil {
		p.record("passcode_webmail_error", map[string]interface{}{"error": truncate(err.Error(), 400)})
		return "", false
	}
	inbox.WaitForTimeout(1500 * time.Millisecond)

	// open the first message whose row matches the subject pattern
	if res, err := inbox.Evaluate(clickSubjectJS, subjectRe.String()); err == nil {
		if clicked, _ := res.(bool); clicked {
			inbox.WaitForTimeout(1200 * time.Millisecond)
		}
	}

	text, err := inbox.InnerText("body", 5*time.Second)
	if err != nil || text == "" {
		text, _ = inbox.Content()
	}
	if len(text) > 300000 {
		text = text[:300000]
	}
	return mailbox.ExtractCode(subjectRe, codeRe, text, text)
}

func (p *PasscodeRetriever) record(event string, step map[string]interface{}) {
	if p.Recorder != nil {
		p.Recorder.Record(event, step, nil)
	}
}
