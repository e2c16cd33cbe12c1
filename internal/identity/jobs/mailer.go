package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
)

// Sender delivers a single plaintext email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers over plain SMTP with optional AUTH.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	// Dial and converse under the caller's deadline so a stuck relay
	// surfaces as a retryable error instead of hanging the worker.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp relay: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return err
		}
	}

	if s.Username != "" {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(s.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(msg.String())); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// LogSender records emails to the log instead of sending them. Used when the
// mailer is disabled (development, tests).
type LogSender struct {
	Log *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("mailer disabled, dropping email",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// Mailer knows the email bodies the identity flows produce.
type Mailer struct {
	Sender Sender
	// SupportAddress is shown in notices and receives admin emails.
	SupportAddress string
}

func (m *Mailer) SendWelcome(ctx context.Context, user domain.User) error {
	body := fmt.Sprintf(`Hello @%s,

Welcome to Mango³.

If you have any questions, please contact us at the following email address: %s`,
		user.Username, m.SupportAddress)

	return m.Sender.Send(ctx, user.Email, "Welcome to Mango³", body)
}

func (m *Mailer) SendConfirmationCode(ctx context.Context, user domain.User, action domain.ConfirmationAction, code string) error {
	var purpose string
	switch action {
	case domain.ConfirmationEmail:
		purpose = "confirm your email"
	case domain.ConfirmationLogin:
		purpose = "confirm your login"
	case domain.ConfirmationPasswordReset:
		purpose = "reset your password"
	default:
		purpose = "confirm this action"
	}

	body := fmt.Sprintf(`Hello %s,

Use this code to %s:

%s

If you don't recognize this action, you can ignore this message.`,
		user.Username, purpose, code)

	return m.Sender.Send(ctx, user.Email, "Confirmation code", body)
}

func (m *Mailer) SendNewSession(ctx context.Context, user domain.User, session domain.Session) error {
	body := fmt.Sprintf(`Hello @%s,

Someone has started a new session from:

Application: %s
Location: %s

If you recognize this action, you can ignore this message.

If not, please contact us at the following email address: %s`,
		user.Username, session.UserAgent, session.Location(), m.SupportAddress)

	return m.Sender.Send(ctx, user.Email, "New session started", body)
}

func (m *Mailer) SendPasswordChanged(ctx context.Context, user domain.User) error {
	body := fmt.Sprintf(`Hello @%s,

Your password has been changed.

If you recognize this action, you can ignore this message.

If not, please contact us at the following email address: %s`,
		user.Username, m.SupportAddress)

	return m.Sender.Send(ctx, user.Email, "Password changed", body)
}

// SendAdminNewUser notifies the operators about a fresh account.
func (m *Mailer) SendAdminNewUser(ctx context.Context, user domain.User) error {
	body := fmt.Sprintf(`Hello,

Someone has created a new user account with the following username: @%s`,
		user.Username)

	return m.Sender.Send(ctx, m.SupportAddress, "(Admin) New user account created", body)
}
