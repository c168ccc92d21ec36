// Package email envía la notificación de "verificación completa" por SMTP.
// Sin SMTP configurado el notifier es un no-op.
package email

import (
	"crypto/tls"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Sender envía un email multipart (texto + html).
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPConfig parámetros del servidor SMTP.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// SMTPSender implementa Sender usando go-mail.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func(d *mail.Dialer, m ...*mail.Message) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{
		cfg:  cfg,
		dial: func(d *mail.Dialer, m ...*mail.Message) error { return d.DialAndSend(m...) },
	}
}

// buildMessage arma el mensaje; el html va como alternativa del texto.
func (s *SMTPSender) buildMessage(to, subject, htmlBody, textBody string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	switch {
	case textBody != "" && htmlBody != "":
		m.SetBody("text/plain", textBody)
		m.AddAlternative("text/html", htmlBody)
	case htmlBody != "":
		m.SetBody("text/html", htmlBody)
	default:
		m.SetBody("text/plain", textBody)
	}
	return m
}

func (s *SMTPSender) dialer() *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // sólo dev
	}
	switch strings.ToLower(s.cfg.TLSMode) {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	default:
		// auto / starttls: go-mail negocia STARTTLS si el server lo ofrece
	}
	return d
}

func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	log := logger.L().With(
		logger.Component("email"),
		logger.String("host", s.cfg.Host),
		logger.Int("port", s.cfg.Port),
		logger.Email(to),
	)

	if err := s.dial(s.dialer(), s.buildMessage(to, subject, htmlBody, textBody)); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("email sent")
	return nil
}
