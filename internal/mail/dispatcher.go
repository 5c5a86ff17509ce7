// Package mail renders and delivers account emails.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/adminpanel/internal/config"
	log "github.com/sirupsen/logrus"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Dispatcher delivers messages.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// NewDispatcher returns an SMTP dispatcher when a host is configured, otherwise a log-only one.
func NewDispatcher(cfg config.MailConfig) Dispatcher {
	if cfg.Host == "" {
		return LogDispatcher{}
	}
	return &SMTPDispatcher{cfg: cfg}
}

// LogDispatcher writes messages to the log instead of sending them.
type LogDispatcher struct{}

// Send logs the message envelope.
func (LogDispatcher) Send(_ context.Context, msg Message) error {
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("mail: smtp not configured, message not sent")
	return nil
}

// SMTPDispatcher delivers messages through an SMTP relay.
type SMTPDispatcher struct {
	cfg config.MailConfig
}

const smtpDialTimeout = 10 * time.Second

// Send delivers msg, upgrading to TLS when the server offers STARTTLS.
func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("mail: header contains newline")
	}
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, errDial := dialer.DialContext(ctx, "tcp", addr)
	if errDial != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, errDial)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var client *smtp.Client
	if d.cfg.Port == 465 {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: d.cfg.Host})
		client, errDial = smtp.NewClient(tlsConn, d.cfg.Host)
	} else {
		client, errDial = smtp.NewClient(conn, d.cfg.Host)
	}
	if errDial != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: handshake: %w", errDial)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if errTLS := client.StartTLS(&tls.Config{ServerName: d.cfg.Host}); errTLS != nil {
			return fmt.Errorf("mail: starttls: %w", errTLS)
		}
	}
	if d.cfg.Username != "" {
		if errAuth := client.Auth(smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)); errAuth != nil {
			return fmt.Errorf("mail: auth: %w", errAuth)
		}
	}
	if errMail := client.Mail(d.cfg.From); errMail != nil {
		return fmt.Errorf("mail: from: %w", errMail)
	}
	if errRcpt := client.Rcpt(msg.To); errRcpt != nil {
		return fmt.Errorf("mail: rcpt: %w", errRcpt)
	}
	writer, errData := client.Data()
	if errData != nil {
		return fmt.Errorf("mail: data: %w", errData)
	}
	if _, errWrite := writer.Write(buildMIME(d.cfg.From, msg)); errWrite != nil {
		_ = writer.Close()
		return fmt.Errorf("mail: write: %w", errWrite)
	}
	if errClose := writer.Close(); errClose != nil {
		return fmt.Errorf("mail: close data: %w", errClose)
	}
	return client.Quit()
}

func buildMIME(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
