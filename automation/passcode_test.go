package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketpilot/config"
	"ticketpilot/mailbox"
)

type fakeMailbox struct {
	messages []mailbox.Message
	err      error
	calls    int
}

func (f *fakeMailbox) FetchRecent(ctx context.Context, limit int) ([]mailbox.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func TestRetrieveFromMailbox(t *testing.T) {
	mb := &fakeMailbox{messages: []mailbox.Message{
		{Subject: "Weekly digest", Body: "lots of numbers 123456"},
		{Subject: "Your verification code", Body: "Use 482193 to sign in"},
	}}
	r := &PasscodeRetriever{Mailbox: mb, Interval: time.Millisecond, Deadline: 100 * time.Millisecond}

	res, err := r.Retrieve(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Code != "482193" || res.Source != "mailbox" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if r.State() != StateFound {
		t.Fatalf("state: %s", r.State())
	}
}

func TestRetrieveMailboxTimeoutFallsBackToWebmail(t *testing.T) {
	// the mailbox never produces a matching message
	mb := &fakeMailbox{messages: []mailbox.Message{{Subject: "Newsletter", Body: "no codes here"}}}

	inbox := newFakePage()
	inbox.innerText = "Acme Support -- Your code is 482193"
	page := newFakePage()
	page.openFn = func() (Page, error) { return inbox, nil }

	r := &PasscodeRetriever{Mailbox: mb, Interval: time.Millisecond, Deadline: 30 * time.Millisecond}
	pc := &config.PasscodeConfig{
		InboxURL:     "https://mail.test/inbox",
		SubjectRegex: "your code",
		CodeRegex:    `(\d{4,8})`,
	}

	res, err := r.Retrieve(context.Background(), page, pc)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Code != "482193" {
		t.Fatalf("expected 482193, got %q", res.Code)
	}
	if res.Source != "webmail" {
		t.Fatalf("expected webmail source, got %q", res.Source)
	}
	if mb.calls == 0 {
		t.Fatal("mailbox channel was never tried")
	}
	if len(inbox.gotos) == 0 || inbox.gotos[0] != pc.InboxURL {
		t.Fatalf("inbox page not visited: %v", inbox.gotos)
	}
	if !inbox.closed {
		t.Fatal("inbox page leaked")
	}
}

func TestRetrieveMailboxErrorSwitchesChannels(t *testing.T) {
	mb := &fakeMailbox{err: errors.New("LOGIN failed")}

	inbox := newFakePage()
	inbox.innerText = "verification code 7712"
	page := newFakePage()
	page.openFn = func() (Page, error) { return inbox, nil }

	r := &PasscodeRetriever{Mailbox: mb, Interval: time.Millisecond, Deadline: 50 * time.Millisecond}
	pc := &config.PasscodeConfig{InboxURL: "https://mail.test/inbox"}

	res, err := r.Retrieve(context.Background(), page, pc)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.Code != "7712" || res.Source != "webmail" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if mb.calls != 1 {
		t.Fatalf("mailbox should be abandoned after the first error, got %d calls", mb.calls)
	}
}

func TestRetrieveTimesOut(t *testing.T) {
	mb := &fakeMailbox{messages: nil}
	r := &PasscodeRetriever{Mailbox: mb, Interval: time.Millisecond, Deadline: 20 * time.Millisecond}

	_, err := r.Retrieve(context.Background(), nil, nil)
	var promptErr *PasscodePromptError
	if !errors.As(err, &promptErr) {
		t.Fatalf("expected PasscodePromptError, got %v", err)
	}
	if r.State() != StateTimedOut {
		t.Fatalf("state: %s", r.State())
	}
}

func TestRetrieveHonorsContextCancel(t *testing.T) {
	mb := &fakeMailbox{messages: nil}
	r := &PasscodeRetriever{Mailbox: mb, Interval: time.Hour, Deadline: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Retrieve(ctx, nil, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retrieve did not stop on context cancel")
	}
}
