// Package notification delivers operator alerts for newly created leads.
// It subscribes to the in-memory event bus; nothing in the ingestion or
// reconciliation pipelines depends on its success.
package notification

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"loadline_backend/platform/config"
)

// Sender delivers one lead alert.
type Sender interface {
	SendLeadAlert(ctx context.Context, toEmail string, alert LeadAlert) error
}

// LeadAlert carries the fields the operator email shows.
type LeadAlert struct {
	Phone            string
	ConversationID   string
	Source           string
	RequiresCallback bool
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// SendLeadAlert sends the operator email for one new lead.
func (s *SMTPSender) SendLeadAlert(ctx context.Context, toEmail string, alert LeadAlert) error {
	subject := "New lead from voice agent: " + alert.Phone
	if alert.RequiresCallback {
		subject = "Callback needed: lead recovered from missed call: " + alert.Phone
	}

	body := fmt.Sprintf(
		"A new lead was created from a voice agent call.\n\n"+
			"Phone: %s\nConversation: %s\nSource: %s\nRequires callback: %t\n",
		alert.Phone, alert.ConversationID, alert.Source, alert.RequiresCallback)

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

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
