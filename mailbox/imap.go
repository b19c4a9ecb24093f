package mailbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Message is one inbox message, newest first in FetchRecent results.
type Message struct {
	Subject string
	Body    string
}

// Mailbox is a pollable source of recent messages.
type Mailbox interface {
	// FetchRecent returns up to limit of the most recent messages,
	// newest first.
	FetchRecent(ctx context.Context, limit int) ([]Message, error)
}

// IMAPMailbox polls an IMAP folder. Each FetchRecent call dials a fresh
// connection so a dropped session never wedges the poll loop.
type IMAPMailbox struct {
	Addr     string // host:port, TLS assumed
	User     string
	Password string
	Folder   string
}

func (m *IMAPMailbox) FetchRecent(ctx context.Context, limit int) ([]Message, error) {
	if m.User == "" || m.Password == "" {
		return nil, fmt.Errorf("imap credentials not configured")
	}

	c, err := client.DialTLS(m.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", m.Addr, err)
	}
	defer c.Logout()

	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}

	if err := c.Login(m.User, m.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	folder := m.Folder
	if folder == "" {
		folder = "INBOX"
	}
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("imap select %s: %w", folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var msgs []Message
	for msg := range ch {
		body := ""
		if r := msg.GetBody(section); r != nil {
			if data, err := io.ReadAll(r); err == nil {
				body = string(data)
			}
		}
		subject := ""
		if msg.Envelope != nil {
			subject = msg.Envelope.Subject
		}
		msgs = append(msgs, Message{Subject: subject, Body: body})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	// newest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
