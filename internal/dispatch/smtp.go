package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/util"
)

// SMTPConfig parametriza el sender de mail.
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	From               string `yaml:"from"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLSMode            string `yaml:"tls_mode"` // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Subject            string `yaml:"subject"`
}

// SMTPSender entrega códigos por correo.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	if cfg.Subject == "" {
		cfg.Subject = "Tu código de verificación"
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Deliver(ctx context.Context, d Delivery) error {
	log := logger.From(ctx).With(
		logger.Component("SMTPSender"),
		logger.Channel(d.Channel),
		logger.String("host", s.cfg.Host),
		logger.String("to", util.MaskAddress(d.Destination)),
	)

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", d.Destination)
	m.SetHeader("Subject", s.cfg.Subject)
	m.SetBody("text/plain", fmt.Sprintf("Tu código de verificación es: %s\n\nSi no lo pediste, ignorá este mensaje.", d.Code))

	dialer := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // solo dev
	}
	switch s.cfg.TLSMode {
	case "ssl":
		dialer.SSL = true
	case "none":
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}

	if err := dialer.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}

	log.Debug("otp delivered")
	return nil
}
