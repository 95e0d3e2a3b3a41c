package alert

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/pkg/types"
)

const smtpDialTimeout = 15 * time.Second

// SMTPSink mails HTML alerts through an internal relay. The relay accepts
// plain unauthenticated SMTP, so no EHLO extensions, STARTTLS, or AUTH are
// attempted.
type SMTPSink struct {
	cfg config.MailConfig

	// dial is overridable for tests.
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

func NewSMTPSink(cfg config.MailConfig) *SMTPSink {
	return &SMTPSink{
		cfg: cfg,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

func (s *SMTPSink) Send(ctx context.Context, alert types.Alert) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPServer, s.cfg.SMTPPort)

	conn, err := s.dial(addr, smtpDialTimeout)
	if err != nil {
		return fmt.Errorf("dial smtp %q: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(smtpDialTimeout))
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Mail(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	for _, rcpt := range s.cfg.ToEmails {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT %q: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write([]byte(s.message(alert))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

func (s *SMTPSink) message(alert types.Alert) string {
	subject := alert.Subject
	if prefix := strings.TrimSpace(s.cfg.SubjectPrefix); prefix != "" {
		subject = prefix + " " + subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.cfg.ToEmails, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(alert.Body)
	b.WriteString("\r\n")
	return b.String()
}
