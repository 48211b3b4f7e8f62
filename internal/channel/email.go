package channel

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/obs/retry"
)

type SMTPConfig struct {
	Addr       string        `mapstructure:"addr"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	From       string        `mapstructure:"from"`
	SubjPrefix string        `mapstructure:"subject_prefix"`
}

// EmailSender delivers reminders over SMTP.
type EmailSender struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

var _ Sender = (*EmailSender)(nil)

func NewEmailSender(cfg SMTPConfig, log *zap.Logger) *EmailSender {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, smtpHost(cfg.Addr))
	}
	return &EmailSender{
		addr:       cfg.Addr,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        log.With(zap.String("component", "channel.email")),
	}
}

func (s *EmailSender) Kind() notification.ChannelKind { return notification.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, n *notification.Notification, rcpt Recipient) Outcome {
	if rcpt.Email == "" {
		return fail("no recipient email")
	}

	title, body := Render(n)
	subj := strings.TrimSpace(s.subjPrefix + " " + title)
	msg := []byte(
		"From: " + s.from + "\r\n" +
			"To: " + rcpt.Email + "\r\n" +
			"Subject: " + subj + "\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + body + "\r\n")

	start := time.Now()
	err := retry.Do(ctx, func() error { return s.deliver(rcpt.Email, msg) }, retry.SendPolicy("email", s.log))
	if err != nil {
		s.log.Warn("email send failed", zap.String("to", rcpt.Email), zap.Error(err))
		return failErr(err)
	}
	s.log.Debug("email sent",
		zap.String("to", rcpt.Email),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ok()
}

func (s *EmailSender) deliver(to string, msg []byte) error {
	if !s.useTLS {
		return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg)
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := tls.DialWithDialer(&dialer, "tcp", s.addr, &tls.Config{ServerName: smtpHost(s.addr)})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, smtpHost(s.addr))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(s.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func smtpHost(addr string) string {
	if i := strings.Index(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
