package outbox

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/config"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text email through an SMTP relay.
type SMTPNotifier struct {
	addr     string
	from     string
	auth     smtp.Auth
	logger   *zap.Logger
	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg config.SMTP, logger *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp notifier: SMTP_HOST is not set")
	}

	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}

	return &SMTPNotifier{
		addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		from:     from,
		auth:     auth,
		logger:   logger,
		sendMail: smtp.SendMail,
	}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	ctx, span := tracer.Start(ctx, "smtp.Send")
	defer span.End()
	span.SetAttributes(attribute.String("to.email", recipient))

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMail(n.from, recipient, subject, body)
	if err := n.sendMail(n.addr, n.auth, n.from, []string{recipient}, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send mail: %w", err)
	}

	logging.Debug(ctx, n.logger, "email sent", zap.String("to", recipient))
	return nil
}

func buildMail(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue(from) + "\r\n")
	b.WriteString("To: " + headerValue(to) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", headerValue(subject)) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// headerValue folds line breaks into spaces so a value cannot start a new
// header.
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, v)
}
