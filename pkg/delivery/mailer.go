package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"path/filepath"

	"github.com/labworks/platform/pkg/common/logger"
)

// Attachment is a file included with an outbound email.
type Attachment struct {
	Filename string
	Content  []byte
}

type EmailMessage struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// EmailSender delivers outbound mail. Failures are reported to the caller
// and never roll back committed domain state.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	sender string
}

func NewSMTPMailer(host, port, user, pass, sender string) *SMTPMailer {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return &SMTPMailer{
		addr:   host + ":" + port,
		auth:   auth,
		sender: sender,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("recipient required")
	}

	payload := buildMIME(m.sender, msg)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.addr, m.auth, m.sender, []string{msg.To}, payload)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email sent")
	return nil
}

func buildMIME(from string, msg EmailMessage) []byte {
	var buf bytes.Buffer
	boundary := "labworks-mime-boundary"

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if msg.Attachment == nil {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		buf.WriteString("\r\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: application/octet-stream\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", filepath.Base(msg.Attachment.Filename))

	encoded := base64.StdEncoding.EncodeToString(msg.Attachment.Content)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

// NoopMailer logs instead of sending, for environments without SMTP.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, msg EmailMessage) error {
	logger.Log.WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email delivery skipped (no SMTP configured)")
	return nil
}
