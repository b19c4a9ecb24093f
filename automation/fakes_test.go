package automation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ticketpilot/selector"
)

// fakeKeyboard records key events.
type fakeKeyboard struct {
	downs   []string
	ups     []string
	presses []string
	downErr error
}

func (k *fakeKeyboard) Press(key string) error {
	k.presses = append(k.presses, key)
	return nil
}

func (k *fakeKeyboard) Down(key string) error {
	if k.downErr != nil {
		return k.downErr
	}
	k.downs = append(k.downs, key)
	return nil
}

func (k *fakeKeyboard) Up(key string) error {
	k.ups = append(k.ups, key)
	return nil
}

// fakePage is an in-memory Page. Selectors listed in visible are considered
// attached; fills and clicks on them succeed unless an error is configured.
type fakePage struct {
	url       string
	visible   map[string]bool
	fillErr   map[string]error
	clickErr  map[string]error
	filled    map[string]string
	clicked   []string
	gotos     []string
	innerText string
	html      string
	frames    []Frame
	kb        *fakeKeyboard
	evalFn    func(expr string, arg interface{}) (interface{}, error)
	evalOnFn  func(sel, expr string, arg interface{}) (interface{}, error)
	openFn    func() (Page, error)
	onClick   func(sel string)
	gotoErr   error
	closed    bool
}

func newFakePage(visible ...string) *fakePage {
	p := &fakePage{
		visible:  make(map[string]bool),
		fillErr:  make(map[string]error),
		clickErr: make(map[string]error),
		filled:   make(map[string]string),
		kb:       &fakeKeyboard{},
	}
	for _, sel := range visible {
		p.visible[sel] = true
	}
	return p
}

func (p *fakePage) Exists(selector string) bool { return p.visible[selector] }

func (p *fakePage) WaitFor(selector string, timeout time.Duration) error {
	if p.visible[selector] {
		return nil
	}
	return errors.New("timeout waiting for " + selector)
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error {
	if err := p.fillErr[selector]; err != nil {
		return err
	}
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Click(selector string, timeout time.Duration) error {
	if err := p.clickErr[selector]; err != nil {
		return err
	}
	p.clicked = append(p.clicked, selector)
	if p.onClick != nil {
		p.onClick(selector)
	}
	return nil
}

func (p *fakePage) EvalOnSelector(selector, expression string, arg interface{}) (interface{}, error) {
	if p.evalOnFn != nil {
		return p.evalOnFn(selector, expression, arg)
	}
	return nil, errors.New("eval on selector not supported")
}

func (p *fakePage) Goto(url string, timeout time.Duration) error {
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.gotos = append(p.gotos, url)
	p.url = url
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Content() (string, error) { return p.html, nil }

func (p *fakePage) InnerText(selector string, timeout time.Duration) (string, error) {
	return p.innerText, nil
}

func (p *fakePage) Evaluate(expression string, arg interface{}) (interface{}, error) {
	if p.evalFn != nil {
		return p.evalFn(expression, arg)
	}
	return nil, nil
}

func (p *fakePage) Press(selector, key string) error { return p.kb.Press(key) }

func (p *fakePage) Keyboard() Keyboard { return p.kb }

func (p *fakePage) Frames() []Frame { return p.frames }

func (p *fakePage) WaitForTimeout(d time.Duration) {
	// keep tests fast: deadline loops re-check time.Now themselves
	time.Sleep(time.Millisecond)
}

func (p *fakePage) Screenshot() ([]byte, error) { return nil, nil }

func (p *fakePage) OpenPage() (Page, error) {
	if p.openFn != nil {
		return p.openFn()
	}
	return nil, errors.New("no second page configured")
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

// fakeFrame is a fakePage posing as a child frame.
type fakeFrame struct {
	*fakePage
}

func (f *fakeFrame) URL() string { return f.fakePage.url }

func newTestScorer(t *testing.T) *selector.Scorer {
	t.Helper()
	return selector.NewScorer(newTestStore(t))
}

func newTestStore(t *testing.T) selector.Store {
	t.Helper()
	return selector.NewFileStore(filepath.Join(t.TempDir(), "stats.json"))
}
