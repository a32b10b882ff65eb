// Package email implements a notifier.Notifier over SMTP. The engine uses
// it to send resolution follow-up prompts and clarification requests to
// ticket requesters.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/resolveq/helpdesk/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// Notifier sends email notifications via SMTP.
type Notifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg, send: smtp.SendMail}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{
		RichFormatting: false,
		Threads:        false,
	}
}

// Send emails the notification to its recipient. The notification title
// becomes the subject line.
func (n *Notifier) Send(_ context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" {
		return notifier.ErrNotConfigured
	}
	if notification.Recipient == "" {
		return fmt.Errorf("email: notification has no recipient")
	}

	addr := n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		n.cfg.From, notification.Recipient, notification.Title, notification.Message)

	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, []string{notification.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("email send to %s: %w", notification.Recipient, err)
	}
	return nil
}
