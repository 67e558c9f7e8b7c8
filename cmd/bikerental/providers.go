package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/config"
	"github.com/pure-golang/bikerental/kv"
	kvnoop "github.com/pure-golang/bikerental/kv/noop"
	"github.com/pure-golang/bikerental/kv/redis"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mail"
	mailnoop "github.com/pure-golang/bikerental/mail/noop"
	"github.com/pure-golang/bikerental/mail/sendgrid"
	"github.com/pure-golang/bikerental/mail/smtp"
)

// verifyTimeout bounds the startup SMTP check.
const verifyTimeout = 15 * time.Second

// newSender returns nil when the selected provider has no credentials.
func newSender(ctx context.Context, cfg config.Config) (mail.Sender, error) {
	switch cfg.Mail.Provider {
	case config.MailProviderSMTP:
		if !cfg.Mail.SMTP.Enabled() {
			return nil, nil
		}
		sender := smtp.NewSender(cfg.Mail.SMTP, nil)
		if cfg.Mail.VerifyOnStart {
			verifySMTP(ctx, sender)
		}
		return sender, nil
	case config.MailProviderSendGrid:
		if !cfg.Mail.SendGrid.Enabled() {
			return nil, nil
		}
		return sendgrid.NewSender(cfg.Mail.SendGrid), nil
	case config.MailProviderNoop:
		return mailnoop.NewSender(), nil
	default:
		return nil, errors.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}

// senderAddress is the From of every email for the selected provider.
func senderAddress(cfg config.Config) mail.Address {
	switch cfg.Mail.Provider {
	case config.MailProviderSMTP:
		return cfg.Mail.SMTP.SenderAddress()
	case config.MailProviderSendGrid:
		return mail.Address{Name: cfg.Mail.SendGrid.FromName, Address: cfg.Mail.SendGrid.From}
	default:
		return mail.Address{}
	}
}

// verifySMTP logs whether the server accepts our login. A failure does
// not disable sending: the server may be back by the first booking.
func verifySMTP(ctx context.Context, sender *smtp.Sender) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if err := sender.Verify(ctx); err != nil {
		logger.FromContextWithErr(ctx, err).Warn("SMTP verification failed")
		return
	}
	logger.FromContext(ctx).Info("SMTP server is ready to send messages")
}

func newKVStore(ctx context.Context, cfg config.Config) (kv.Store, error) {
	switch cfg.KV.Provider {
	case kv.ProviderRedis:
		client, err := redis.Connect(ctx, cfg.KV.Redis)
		if err != nil {
			return nil, err
		}
		return client, nil
	case kv.ProviderNoop:
		return kvnoop.NewStore(), nil
	default:
		return nil, errors.Errorf("unknown kv provider %q", cfg.KV.Provider)
	}
}
