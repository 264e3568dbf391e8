package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"

	"github.com/wneessen/go-mail"
)

const (
	resetSubject   = "Password Reset Code"
	changedSubject = "Password Changed Successfully"
)

var resetHTML = template.Must(template.New("reset").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password Reset Request</h2>
  <p>You requested to reset your password. Use the code below to continue:</p>
  <div style="background: #f4f4f4; padding: 20px; text-align: center; font-size: 32px; letter-spacing: 8px; font-weight: bold;">{{.Code}}</div>
  <p>This code expires in {{.Minutes}} minutes.</p>
  <p>If you did not request a password reset, you can ignore this email.</p>
</div>`))

var changedHTML = template.Must(template.New("changed").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password Changed</h2>
  <p>The password for {{.Email}} was changed successfully.</p>
  <p>If you did not make this change, contact support immediately.</p>
</div>`))

// SMTPConfig describes the outgoing relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay using go-mail.
type SMTPSender struct {
	from string
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPSender{
		from: cfg.From,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (s *SMTPSender) SendResetCode(ctx context.Context, n ResetCodeNotification) error {
	minutes := int(math.Round(n.Validity.Minutes()))
	text := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.\n"+
		"If you did not request a password reset, you can ignore this email.\n", n.Code, minutes)

	msg, err := s.newMessage(n.Email, resetSubject, text, resetHTML, struct {
		Code    string
		Minutes int
	}{n.Code, minutes})
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

func (s *SMTPSender) SendPasswordChanged(ctx context.Context, email string) error {
	text := fmt.Sprintf("The password for %s was changed successfully.\n"+
		"If you did not make this change, contact support immediately.\n", email)

	msg, err := s.newMessage(email, changedSubject, text, changedHTML, struct{ Email string }{email})
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

func (s *SMTPSender) newMessage(to, subject, text string, html *template.Template, data any) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)

	var buf bytes.Buffer
	if err := html.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", html.Name(), err)
	}
	msg.AddAlternativeString(mail.TypeTextHTML, buf.String())

	return msg, nil
}

func (s *SMTPSender) deliver(ctx context.Context, msg *mail.Msg) error {
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
