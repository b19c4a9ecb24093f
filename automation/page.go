// Package automation drives a real browser through a provider's ticket UI,
// surviving selector drift, two-factor prompts and blocked logins, and
// delegates to the provider's API adapter when the UI path is abandoned.
package automation

import "time"

// Surface is anything fill/click primitives can act on: the top-level page
// or one of its frames.
type Surface interface {
	// Exists reports whether the selector matches right now, without waiting.
	Exists(selector string) bool
	// WaitFor blocks until the selector is attached and visible, or timeout.
	WaitFor(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Click(selector string, timeout time.Duration) error
	// EvalOnSelector runs a JS expression against the first match.
	EvalOnSelector(selector, expression string, arg interface{}) (interface{}, error)
}

// Frame is a child frame of a page.
type Frame interface {
	Surface
	URL() string
}

// Keyboard sends raw key events to the focused element.
type Keyboard interface {
	Press(key string) error
	Down(key string) error
	Up(key string) error
}

// Page is the browser surface the engine drives. It is a narrow slice of
// what Playwright offers, so tests can substitute a fake.
type Page interface {
	Surface
	Goto(url string, timeout time.Duration) error
	URL() string
	Content() (string, error)
	InnerText(selector string, timeout time.Duration) (string, error)
	Evaluate(expression string, arg interface{}) (interface{}, error)
	Press(selector, key string) error
	Keyboard() Keyboard
	Frames() []Frame
	WaitForTimeout(d time.Duration)
	Screenshot() ([]byte, error)
	// OpenPage opens a second page in the same browser context (used for
	// webmail scraping so the provider session is left untouched).
	OpenPage() (Page, error)
	Close() error
}

// Browser launches pages. Production code uses the Playwright launcher;
// tests inject fakes.
type Browser interface {
	NewPage() (Page, error)
	Close() error
}
