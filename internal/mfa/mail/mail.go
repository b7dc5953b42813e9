// Package mail provides the code-delivery collaborator. Providers only
// see the Mailer interface.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTP delivers mail through a plain SMTP relay.
type SMTP struct {
	Addr string // host:port
	From string

	// Username and Password enable PLAIN auth when both are set.
	Username string
	Password string
}

func (m *SMTP) Send(_ context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		host := m.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, to, subject, body)

	return smtp.SendMail(m.Addr, auth, m.From, []string{to}, []byte(msg))
}

// Log writes mail to the logger instead of sending it. Meant for local
// development, the body carries the verification code so it is logged
// at debug level only.
type Log struct {
	Logger *slog.Logger
}

func (m *Log) Send(_ context.Context, to, subject, body string) error {
	log := m.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("mail delivery (log mailer)", "to", to, "subject", subject, "body", body)
	return nil
}
