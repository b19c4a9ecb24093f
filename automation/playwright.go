package automation

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Launcher starts a Chromium page, either ephemeral or backed by a
// persistent profile directory. A persistent profile is an exclusive
// resource: a lock file keeps two runs from sharing it.
type Launcher struct {
	Headless   bool
	SlowMoMS   int
	ProfileDir string
}

// Launch returns a ready page and a cleanup function that tears down the
// whole Playwright stack.
func (l *Launcher) Launch() (Page, func(), error) {
	instance, err := pw.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(l.Headless),
	}
	if l.SlowMoMS > 0 {
		launchOpts.SlowMo = pw.Float(float64(l.SlowMoMS))
	}
	if path := browserExecutable(); path != "" {
		launchOpts.ExecutablePath = pw.String(path)
		log.Printf("🚀 Using browser executable: %s", path)
	}

	if l.ProfileDir != "" {
		unlock, err := lockProfile(l.ProfileDir)
		if err != nil {
			instance.Stop()
			return nil, nil, err
		}
		ctxOpts := pw.BrowserTypeLaunchPersistentContextOptions{
			Headless: pw.Bool(l.Headless),
		}
		if l.SlowMoMS > 0 {
			ctxOpts.SlowMo = pw.Float(float64(l.SlowMoMS))
		}
		if launchOpts.ExecutablePath != nil {
			ctxOpts.ExecutablePath = launchOpts.ExecutablePath
		}
		ctx, err := instance.Chromium.LaunchPersistentContext(l.ProfileDir, ctxOpts)
		if err != nil {
			unlock()
			instance.Stop()
			return nil, nil, fmt.Errorf("launch persistent context: %w", err)
		}
		var page pw.Page
		if pages := ctx.Pages(); len(pages) > 0 {
			page = pages[0]
		} else {
			page, err = ctx.NewPage()
			if err != nil {
				ctx.Close()
				unlock()
				instance.Stop()
				return nil, nil, fmt.Errorf("new page: %w", err)
			}
		}
		cleanup := func() {
			if err := ctx.Close(); err != nil {
				log.Printf("⚠️ context close: %v", err)
			}
			unlock()
			instance.Stop()
		}
		return &pwPage{page: page}, cleanup, nil
	}

	browser, err := instance.Chromium.Launch(launchOpts)
	if err != nil {
		instance.Stop()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		instance.Stop()
		return nil, nil, fmt.Errorf("new page: %w", err)
	}
	cleanup := func() {
		if err := browser.Close(); err != nil {
			log.Printf("⚠️ browser close: %v", err)
		}
		instance.Stop()
	}
	return &pwPage{page: page}, cleanup, nil
}

// browserExecutable mirrors the container-friendly probe order used by the
// scraper deployments.
func browserExecutable() string {
	if path := os.Getenv("PLAYWRIGHT_EXECUTABLE_PATH"); path != "" {
		return path
	}
	for _, p := range []string{
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/bin/google-chrome",
		"/usr/bin/chromium-browser",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func lockProfile(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	lockPath := filepath.Join(dir, ".ticketpilot.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("profile %s is in use by another run: %w", dir, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() {
		if err := os.Remove(lockPath); err != nil {
			log.Printf("⚠️ could not remove profile lock: %v", err)
		}
	}, nil
}

// pwPage adapts a playwright page to the engine's Page interface.
type pwPage struct {
	page pw.Page
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateLoad,
		Timeout:   pw.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Content() (string, error) { return p.page.Content() }

func (p *pwPage) InnerText(selector string, timeout time.Duration) (string, error) {
	return p.page.InnerText(selector, pw.PageInnerTextOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Exists(selector string) bool {
	count, err := p.page.Locator(selector).Count()
	return err == nil && count > 0
}

func (p *pwPage) WaitFor(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Fill(value, pw.LocatorFillOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(pw.LocatorClickOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) EvalOnSelector(selector, expression string, arg interface{}) (interface{}, error) {
	return p.page.Locator(selector).First().Evaluate(expression, arg)
}

func (p *pwPage) Evaluate(expression string, arg interface{}) (interface{}, error) {
	if arg == nil {
		return p.page.Evaluate(expression)
	}
	return p.page.Evaluate(expression, arg)
}

func (p *pwPage) Press(selector, key string) error {
	return p.page.Locator(selector).First().Press(key)
}

func (p *pwPage) Keyboard() Keyboard { return &pwKeyboard{kb: p.page.Keyboard()} }

func (p *pwPage) Frames() []Frame {
	pwFrames := p.page.Frames()
	frames := make([]Frame, 0, len(pwFrames))
	for _, f := range pwFrames {
		if f == p.page.MainFrame() {
			continue
		}
		frames = append(frames, &pwFrame{frame: f})
	}
	return frames
}

func (p *pwPage) WaitForTimeout(d time.Duration) {
	p.page.WaitForTimeout(float64(d.Milliseconds()))
}

func (p *pwPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(pw.PageScreenshotOptions{FullPage: pw.Bool(true)})
}

func (p *pwPage) OpenPage() (Page, error) {
	page, err := p.page.Context().NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{page: page}, nil
}

func (p *pwPage) Close() error { return p.page.Close() }

type pwFrame struct {
	frame pw.Frame
}

func (f *pwFrame) URL() string { return f.frame.URL() }

func (f *pwFrame) Exists(selector string) bool {
	count, err := f.frame.Locator(selector).Count()
	return err == nil && count > 0
}

func (f *pwFrame) WaitFor(selector string, timeout time.Duration) error {
	return f.frame.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (f *pwFrame) Fill(selector, value string, timeout time.Duration) error {
	return f.frame.Locator(selector).First().Fill(value, pw.LocatorFillOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (f *pwFrame) Click(selector string, timeout time.Duration) error {
	return f.frame.Locator(selector).First().Click(pw.LocatorClickOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
}

func (f *pwFrame) EvalOnSelector(selector, expression string, arg interface{}) (interface{}, error) {
	return f.frame.Locator(selector).First().Evaluate(expression, arg)
}

type pwKeyboard struct {
	kb pw.Keyboard
}

func (k *pwKeyboard) Press(key string) error { return k.kb.Press(key) }
func (k *pwKeyboard) Down(key string) error  { return k.kb.Down(key) }
func (k *pwKeyboard) Up(key string) error    { return k.kb.Up(key) }
