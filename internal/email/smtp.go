// Package email delivers internal notifications to tenant staff.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// BookingNotice describes a booking for the tenant's internal inbox.
type BookingNotice struct {
	TenantName string
	LeadName   string
	LeadPhone  string
	Service    string
	Start      time.Time
	Location   *time.Location
	EventID    string
}

// Sender sends internal e-mails.
type Sender interface {
	SendBookingNotice(ctx context.Context, toEmail string, notice BookingNotice) error
}

// NewSender returns an SMTP sender when SMTP is configured, otherwise a no-op.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.IsEmailEnabled() {
		return NoopSender{log: log}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

// SMTPSender delivers mail over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendBookingNotice(ctx context.Context, toEmail string, notice BookingNotice) error {
	subject, content, err := renderBookingNotice(notice)
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func renderBookingNotice(notice BookingNotice) (string, string, error) {
	loc := notice.Location
	if loc == nil {
		loc = time.UTC
	}
	when := notice.Start.In(loc).Format("Mon 2 Jan 2006 15:04 MST")
	content, err := renderEmailTemplate("booking_created.html", bookingCreatedEmailData{
		baseEmailData: baseEmailData{
			Title:      "New booking",
			Heading:    "New booking",
			Subheading: notice.TenantName,
		},
		TenantName: notice.TenantName,
		LeadName:   notice.LeadName,
		LeadPhone:  notice.LeadPhone,
		Service:    notice.Service,
		When:       when,
		EventID:    notice.EventID,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectBookingCreatedFmt, notice.Service, when), content, nil
}

// NoopSender logs instead of sending.
type NoopSender struct {
	log *logger.Logger
}

func (s NoopSender) SendBookingNotice(_ context.Context, toEmail string, notice BookingNotice) error {
	if s.log != nil {
		s.log.Info("booking email not sent, smtp not configured", "to", toEmail, "event_id", notice.EventID)
	}
	return nil
}
