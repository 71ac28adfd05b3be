package notifier

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/report"
)

type fakeSender struct {
	to, subject, html, plain string
	err                      error
}

func (f *fakeSender) Send(to, subject, htmlBody, plainBody string) error {
	f.to, f.subject, f.html, f.plain = to, subject, htmlBody, plainBody
	return f.err
}

func TestSendReport(t *testing.T) {
	rep := &report.Report{
		HTML:      []byte("<p>threads</p>"),
		PlainText: "threads",
		CreatedAt: time.Date(2025, time.June, 2, 8, 30, 0, 0, time.UTC),
	}

	f := &fakeSender{}
	if err := New(f, "me@example.com").SendReport(rep); err != nil {
		t.Fatal(err)
	}
	if f.to != "me@example.com" || f.subject != "threadscrape report for Mon Jun 2 08:30" || f.html != "<p>threads</p>" || f.plain != "threads" {
		t.Errorf("sent: %+v", f)
	}

	boom := errors.New("boom")
	if err := New(&fakeSender{err: boom}, "me@example.com").SendReport(rep); !errors.Is(err, boom) {
		t.Errorf("expected wrapped sender error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(config.NotifyConfig{Provider: "carrier-pigeon"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	n, err := NewFromConfig(config.NotifyConfig{Provider: "smtp", SMTPHost: "mail", SMTPPort: 25, FromAddr: "bot@example.com", ToAddr: "me@example.com"})
	if err != nil || n.to != "me@example.com" {
		t.Errorf("smtp notifier: %+v (%v)", n, err)
	}
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender("mail.example.com", 2525, "", "", "bot@example.com")
	var gotAddr string
	var gotAuth smtp.Auth
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotMsg = addr, a, msg
		return nil
	}

	if err := s.Send("me@example.com", "subj", "<b>hi</b>", "hi"); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.com:2525" || gotAuth != nil {
		t.Errorf("addr %s auth %v", gotAddr, gotAuth)
	}
	msg := string(gotMsg)
	for _, want := range []string{"To: me@example.com\r\n", "Subject: subj\r\n", "text/plain", "<b>hi</b>"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("a@x", "b@x", "s", "<p>h</p>", "p", "B"))
	if strings.Index(msg, "text/plain") > strings.Index(msg, "text/html") {
		t.Errorf("plain part should come first")
	}
	if !strings.HasSuffix(msg, "--B--\r\n") || strings.Count(msg, "--B\r\n") != 2 {
		t.Errorf("boundaries: %q", msg)
	}
}
