package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
)

// Mail is one outgoing message with a plain-text and an HTML alternative.
type Mail struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer submits mail. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, m *Mail) error
}

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
}

// SMTPMailer submits mail over SMTP, upgrading with STARTTLS when offered.
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

func (m *SMTPMailer) Send(ctx context.Context, mail *Mail) error {
	if len(mail.To) == 0 {
		return fmt.Errorf("send mail: no recipients")
	}
	msg, err := buildMIME(mail)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	// net/smtp has no context support; the deadline bounds the whole exchange.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if m.config.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.config.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.config.Username != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(mail.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	for _, rcpt := range mail.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

// buildMIME renders a multipart/alternative message.
func buildMIME(mail *Mail) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	headers := []struct{ key, value string }{
		{"From", mail.From},
		{"To", strings.Join(mail.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", mail.Subject)},
		{"Date", time.Now().UTC().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), senderDomain(mail.From))},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	var head bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&head, "%s: %s\r\n", h.key, h.value)
	}
	head.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", mail.Text},
		{"text/html; charset=UTF-8", mail.HTML},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("encode mime part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("encode mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime message: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func senderDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 {
		return strings.Trim(from[i+1:], "> ")
	}
	return "localhost"
}

// EmailChannel sends one message to all of a budget's recipients.
type EmailChannel struct {
	mailer       Mailer
	from         string
	dashboardURL string
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(mailer Mailer, from, dashboardURL string) *EmailChannel {
	return &EmailChannel{mailer: mailer, from: from, dashboardURL: dashboardURL}
}

func (e *EmailChannel) Kind() model.Channel { return model.ChannelEmail }

func (e *EmailChannel) Deliver(ctx context.Context, budget *model.Budget, alert *model.BudgetAlert) error {
	msg, err := RenderMessage(budget, alert, e.dashboardURL)
	if err != nil {
		return err
	}
	err = e.mailer.Send(ctx, &Mail{
		From:    e.from,
		To:      budget.NotificationEmails,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("send email alert: %w", err)
	}
	return nil
}
