// Package email delivers account lifecycle mail over SMTP. It implements
// the EmailSender seam of the authcore engine; the engine hands it a
// purpose and a ready-made link and never sees SMTP details.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"net/textproto"

	mail "github.com/jordan-wright/email"

	"github.com/mintlane/authcore"
)

// Config carries the SMTP endpoint and sender identity.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the RFC 5322 sender, e.g. "Mintlane <no-reply@mintlane.com>".
	From string

	// ReplyTo, when set, overrides the default no-reply behavior.
	ReplyTo []string

	// StartTLS upgrades the connection after connect. Plain connections
	// are for local development against an SMTP emulator only.
	StartTLS bool

	// InsecureSkipVerify disables certificate verification. Development
	// emulators only.
	InsecureSkipVerify bool
}

// SMTPSender sends one message per call over a fresh SMTP connection.
// Token mail volume is bounded by the engine's rate limiters, so a
// connection pool buys nothing here.
type SMTPSender struct {
	config Config
	addr   string
	auth   smtp.Auth
}

func NewSMTPSender(config Config) (*SMTPSender, error) {
	if config.Host == "" || config.Port == 0 {
		return nil, errors.New("email: SMTP host and port are required")
	}
	if config.From == "" {
		return nil, errors.New("email: From address is required")
	}

	var auth smtp.Auth
	if config.Username != "" || config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &SMTPSender{
		config: config,
		addr:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		auth:   auth,
	}, nil
}

// Send renders the template for purpose and delivers it. The context is
// checked before dialing; the SMTP exchange itself is not cancelable.
func (s *SMTPSender) Send(ctx context.Context, purpose authcore.TokenPurpose, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := renderMessage(purpose, link)
	if err != nil {
		return err
	}

	msg := &mail.Email{
		To:      []string{to},
		From:    s.config.From,
		ReplyTo: s.config.ReplyTo,
		Subject: subject,
		HTML:    body,
		Headers: textproto.MIMEHeader{},
	}

	if s.config.StartTLS {
		tlsConfig := &tls.Config{
			ServerName:         s.config.Host,
			InsecureSkipVerify: s.config.InsecureSkipVerify,
		}
		if err := msg.SendWithStartTLS(s.addr, s.auth, tlsConfig); err != nil {
			return fmt.Errorf("send %s mail: %w", purpose, err)
		}
		return nil
	}

	if err := msg.Send(s.addr, s.auth); err != nil {
		return fmt.Errorf("send %s mail: %w", purpose, err)
	}
	return nil
}

var messageTemplates = map[authcore.TokenPurpose]struct {
	subject string
	body    *template.Template
}{
	authcore.PurposePasswordReset: {
		subject: "Reset your Mintlane password",
		body: template.Must(template.New("reset").Parse(`<p>We received a request to reset your Mintlane password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link is valid for a limited time and can be used once. If you did not request this, you can ignore this message.</p>`)),
	},
	authcore.PurposeEmailVerification: {
		subject: "Confirm your Mintlane email address",
		body: template.Must(template.New("verify").Parse(`<p>Welcome to Mintlane. Please confirm your email address.</p>
<p><a href="{{.Link}}">Confirm email address</a></p>
<p>If you did not create a Mintlane account, you can ignore this message.</p>`)),
	},
}

func renderMessage(purpose authcore.TokenPurpose, link string) (string, []byte, error) {
	tpl, ok := messageTemplates[purpose]
	if !ok {
		return "", nil, fmt.Errorf("email: no template for purpose %q", purpose)
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, struct{ Link string }{Link: link}); err != nil {
		return "", nil, fmt.Errorf("render %s mail: %w", purpose, err)
	}
	return tpl.subject, buf.Bytes(), nil
}

var _ authcore.EmailSender = (*SMTPSender)(nil)
