// Package notifier emails the thread report after a run.
package notifier

import (
	"errors"
	"fmt"

	"github.com/ibeckermayer/threadscrape/internal/config"
	"github.com/ibeckermayer/threadscrape/internal/report"
)

// ErrUnknownProvider is returned by NewFromConfig.
var ErrUnknownProvider = errors.New("unknown email provider")

// Notifier sends reports to one recipient.
type Notifier struct {
	sender Sender
	to     string
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, htmlBody, plainBody string) error
}

// New creates a notifier delivering to addr through sender.
func New(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

// NewFromConfig creates a notifier based on configuration
func NewFromConfig(cfg config.NotifyConfig) (*Notifier, error) {
	var sender Sender

	switch cfg.Provider {
	case "smtp", "":
		sender = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromAddr)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return New(sender, cfg.ToAddr), nil
}

// Subject is the email subject line for rep.
func Subject(rep *report.Report) string {
	return "threadscrape report for " + rep.CreatedAt.Format("Mon Jan 2 15:04")
}

// SendReport mails rep.
func (n *Notifier) SendReport(rep *report.Report) error {
	if err := n.sender.Send(n.to, Subject(rep), string(rep.HTML), rep.PlainText); err != nil {
		return fmt.Errorf("send report to %s: %w", n.to, err)
	}
	return nil
}
