package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Sender delivers notification emails. Delivery failures surface as
// SendError and never abort the update workflow; the surrounding UI
// layer decides when to notify, the update engine never does.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPNotifier sends mail through a plain SMTP relay, throttled by a
// sliding-window rate limiter.
type SMTPNotifier struct {
	addr    string
	from    string
	auth    smtp.Auth
	limiter *RateLimiter
}

func NewSMTPNotifier(host, port, username, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr:    host + ":" + port,
		from:    from,
		auth:    auth,
		limiter: NewRateLimiter(30),
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if strings.HasPrefix(n.addr, ":") {
		return &SendError{Recipient: recipient, Err: fmt.Errorf("SMTP host not configured")}
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return &SendError{Recipient: recipient, Err: err}
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, recipient, subject, body)

	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{recipient}, []byte(msg)); err != nil {
		slog.Error("Failed to send notification", "recipient", recipient, "error", err)
		return &SendError{Recipient: recipient, Err: err}
	}

	slog.Info("Notification sent", "recipient", recipient, "subject", subject)
	return nil
}
