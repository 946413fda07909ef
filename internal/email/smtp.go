// Package email delivers approval notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"leadrouting_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers routing notification emails.
type Sender interface {
	SendApprovalRequest(ctx context.Context, to []string, data ApprovalRequestData) error
	SendApprovalReminder(ctx context.Context, to []string, data ApprovalRequestData) error
}

// ApprovalRequestData carries the rendered fields of an approval email.
type ApprovalRequestData struct {
	ProposalID string
	BoardID    string
	ItemID     string
	Assignee   string
	Reason     string
}

// SMTPSender implements Sender using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSender creates a sender from the email configuration. A disabled
// configuration yields a no-op sender.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		return noopSender{}
	}
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, to []string, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendApprovalRequest notifies approvers that a proposal awaits a decision.
func (s *SMTPSender) SendApprovalRequest(ctx context.Context, to []string, data ApprovalRequestData) error {
	content, err := renderEmailTemplate("approval_request.html", data)
	if err != nil {
		return err
	}
	return s.send(ctx, to, subjectApprovalRequest, content)
}

// SendApprovalReminder nudges approvers about a still-pending proposal.
func (s *SMTPSender) SendApprovalReminder(ctx context.Context, to []string, data ApprovalRequestData) error {
	content, err := renderEmailTemplate("approval_reminder.html", data)
	if err != nil {
		return err
	}
	return s.send(ctx, to, subjectApprovalReminder, content)
}

type noopSender struct{}

func (noopSender) SendApprovalRequest(context.Context, []string, ApprovalRequestData) error {
	return nil
}
func (noopSender) SendApprovalReminder(context.Context, []string, ApprovalRequestData) error {
	return nil
}
