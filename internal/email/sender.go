package email

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/shinyyama/fleamarket-backend/internal/config"
)

// Sender delivers a fully formatted message (headers and body).
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

type SMTPSender struct {
	from string
	auth smtp.Auth
	addr string
}

// NewSMTPSender returns a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SMTPHost == "" {
		log.Println("[email] stage=init smtp host not configured, using logging sender")
		return &LoggingSender{From: cfg.SMTPFrom}
	}
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPSender{
		from: cfg.SMTPFrom,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		log.Printf("[email] stage=send to=%v err=%v", to, err)
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Printf("[email] stage=sent to=%v subject=%q", to, subject)
	return nil
}

// LoggingSender writes messages to the log instead of sending them.
type LoggingSender struct {
	From string
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	log.Printf("[email] stage=logged from=%s to=%v subject=%q\n%s", s.From, to, subject, rawMessage)
	return nil
}

// BuildMessage composes a plain-text UTF-8 message with RFC 5322 headers.
func BuildMessage(from string, to []string, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}
