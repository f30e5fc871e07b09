package mail

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/motorlist/pkg/logger"
)

// LogMailer writes messages to the log instead of delivering them. It is used
// when SMTP is disabled so links can still be picked up during development.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer builds a LogMailer on the "mail" module logger.
func NewLogMailer() *LogMailer {
	return &LogMailer{log: logger.WithModule("mail")}
}

// Send logs the recipients, tag and link of msg.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	m.log.Info("email not delivered (smtp disabled)",
		zap.Strings("to", uniqueAddresses(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("tag", strings.TrimSpace(msg.Tag)),
		zap.String("link", msg.Link),
		zap.Int("body_bytes", len(msg.HTMLBody)),
	)
	return nil
}

// FromSettings returns an SMTP mailer when delivery is enabled and a LogMailer otherwise.
func FromSettings(cfg SMTPSettings) (Mailer, error) {
	if !cfg.Enabled {
		return NewLogMailer(), nil
	}
	return NewSMTPMailer(cfg)
}
