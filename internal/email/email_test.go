package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
)

type captureSender struct {
	to, subject, html, text string
	calls                   int
	err                     error
}

func (c *captureSender) Send(to, subject, html, text string) error {
	c.calls++
	c.to, c.subject, c.html, c.text = to, subject, html, text
	return c.err
}

func TestMailNotifier_Sends(t *testing.T) {
	s := &captureSender{}
	n := NewMailNotifier(s)
	n.VerificationComplete(context.Background(), Notice{
		To:          "ada@example.com",
		SubjectID:   "u1",
		CompletedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
		AppName:     "Sentinel",
	})
	if s.calls != 1 {
		t.Fatalf("calls=%d, want 1", s.calls)
	}
	if s.to != "ada@example.com" || s.subject != subjectLine {
		t.Fatalf("unexpected envelope: %q %q", s.to, s.subject)
	}
	if !strings.Contains(s.text, "2026-01-02 15:04 UTC") || !strings.Contains(s.html, "<strong>Sentinel</strong>") {
		t.Fatalf("unexpected bodies:\n%s\n%s", s.text, s.html)
	}
}

func TestMailNotifier_SkipsWithoutRecipientAndSwallowsErrors(t *testing.T) {
	s := &captureSender{err: errors.New("smtp down")}
	n := NewMailNotifier(s)
	n.VerificationComplete(context.Background(), Notice{SubjectID: "u1"})
	if s.calls != 0 {
		t.Fatalf("must not send without recipient")
	}
	n.VerificationComplete(context.Background(), Notice{To: "a@b.co"})
	if s.calls != 1 {
		t.Fatalf("calls=%d, want 1", s.calls)
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	html, _, err := Render(Notice{AppName: "<script>"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("app name must be escaped: %s", html)
	}
}

func TestSMTPSender_UsesDialer(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.local", Port: 2525, From: "noreply@sentinel.dev", TLSMode: "ssl"})
	var gotSSL bool
	var msgs int
	s.dial = func(d *mail.Dialer, m ...*mail.Message) error {
		gotSSL = d.SSL
		msgs = len(m)
		return nil
	}
	if err := s.Send("a@b.co", "hi", "<p>x</p>", "x"); err != nil {
		t.Fatal(err)
	}
	if !gotSSL || msgs != 1 {
		t.Fatalf("ssl=%v msgs=%d", gotSSL, msgs)
	}

	s.dial = func(*mail.Dialer, ...*mail.Message) error { return errors.New("refused") }
	if err := s.Send("a@b.co", "hi", "", "x"); err == nil {
		t.Fatal("expected dial error")
	}
}
