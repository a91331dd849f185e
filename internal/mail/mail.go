// Package mail renders and sends transactional email over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Message is a rendered email ready to send.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// New returns an SMTP sender, or a sender that only logs when cfg.Host is
// empty.
func New(cfg Config, log *slog.Logger) Sender {
	if cfg.Host == "" {
		return &logSender{log: log}
	}
	return &SMTPSender{cfg: cfg, dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)}
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg    Config
	dialer *gomail.Dialer
}

// Send dials the relay and sends msg. gomail has no context support, so ctx
// is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

type logSender struct{ log *slog.Logger }

func (l *logSender) Send(ctx context.Context, msg Message) error {
	l.log.InfoContext(ctx, "mail: EMAIL_HOST not set, email not sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// WelcomeData fills templates/welcome.html.
type WelcomeData struct {
	FullName string
	Username string
	Password string
	LoginURL string
}

// LeaveStatusData fills templates/leave_status.html.
type LeaveStatusData struct {
	FullName        string
	Status          string
	LeaveType       string
	StartDate       string
	EndDate         string
	Days            int
	ApprovedBy      string
	RejectionReason string
}

// PasswordResetData fills templates/password_reset.html.
type PasswordResetData struct {
	FullName string
	ResetURL string
	Expires  string
}

// Welcome renders the account-created email.
func Welcome(to string, d WelcomeData) (Message, error) {
	return render(to, "Welcome to D-Nothi", "welcome.html", d)
}

// LeaveStatus renders the leave decision email.
func LeaveStatus(to string, d LeaveStatusData) (Message, error) {
	return render(to, fmt.Sprintf("Your leave request was %s", d.Status), "leave_status.html", d)
}

// PasswordReset renders the reset-link email.
func PasswordReset(to string, d PasswordResetData) (Message, error) {
	return render(to, "Reset your D-Nothi password", "password_reset.html", d)
}

func render(to, subject, name string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
