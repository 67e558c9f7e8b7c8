// Package config loads the process configuration from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/api"
	"github.com/pure-golang/bikerental/dispatch/rabbitmq"
	"github.com/pure-golang/bikerental/httpserver/std"
	"github.com/pure-golang/bikerental/kv"
	"github.com/pure-golang/bikerental/kv/redis"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mail/sendgrid"
	"github.com/pure-golang/bikerental/mail/smtp"
	"github.com/pure-golang/bikerental/metrics"
	"github.com/pure-golang/bikerental/render"
	"github.com/pure-golang/bikerental/storage/postgres"
	"github.com/pure-golang/bikerental/tracing/jaeger"
)

const DefaultEnvFile = ".env"

// FallbackSupportEmail is shown in emails when no address is configured.
const FallbackSupportEmail = "support@bikerental.com"

type MailProvider string

const (
	MailProviderSMTP     MailProvider = "smtp"
	MailProviderSendGrid MailProvider = "sendgrid"
	MailProviderNoop     MailProvider = "noop"
)

type DispatchProvider string

const (
	DispatchInProc   DispatchProvider = "inproc"
	DispatchRabbitMQ DispatchProvider = "rabbitmq"
)

type Mail struct {
	Provider       MailProvider  `envconfig:"MAIL_PROVIDER" default:"smtp"`
	MaxAttempts    int           `envconfig:"EMAIL_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"EMAIL_RETRY_BASE_DELAY" default:"1s"`
	OwnerEmail     string        `envconfig:"OWNER_EMAIL"`
	AdminEmail     string        `envconfig:"ADMIN_EMAIL"`
	// VerifyOnStart checks the SMTP login once at startup.
	VerifyOnStart bool `envconfig:"EMAIL_VERIFY_ON_START" default:"true"`

	SMTP     smtp.Config
	SendGrid sendgrid.Config
}

type Dispatch struct {
	Provider DispatchProvider `envconfig:"DISPATCH_PROVIDER" default:"inproc"`
	RabbitMQ rabbitmq.Config
}

type KV struct {
	kv.Config
	Redis redis.Config
}

type Jobs struct {
	// RentalSweepSchedule is a cron spec. Empty disables the sweep.
	RentalSweepSchedule string `envconfig:"RENTAL_SWEEP_SCHEDULE" default:"@hourly"`
}

// Config aggregates every component's configuration.
type Config struct {
	Logger   logger.Config
	Tracing  jaeger.Config
	Metrics  metrics.Config
	Server   std.Config
	API      api.Config
	Postgres postgres.Config
	Branding render.Branding
	Mail     Mail
	Dispatch Dispatch
	KV       KV
	Jobs     Jobs
}

// Load reads the optional env files (DefaultEnvFile when none given),
// then the environment. Variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		// nolint:errcheck // env files are optional
		_ = godotenv.Load(f)
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to envconfig.Process")
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.resolve()

	return c, nil
}

func (c Config) validate() error {
	switch c.Mail.Provider {
	case MailProviderSMTP, MailProviderSendGrid, MailProviderNoop:
	default:
		return errors.Errorf("unknown MAIL_PROVIDER %q", c.Mail.Provider)
	}
	switch c.Dispatch.Provider {
	case DispatchInProc:
	case DispatchRabbitMQ:
		if c.Dispatch.RabbitMQ.URL == "" {
			return errors.New("RABBITMQ_URL is required for the rabbitmq dispatcher")
		}
	default:
		return errors.Errorf("unknown DISPATCH_PROVIDER %q", c.Dispatch.Provider)
	}
	switch c.KV.Provider {
	case kv.ProviderNoop, kv.ProviderRedis:
	default:
		return errors.Errorf("unknown KV_PROVIDER %q", c.KV.Provider)
	}
	if c.Mail.MaxAttempts < 1 {
		return errors.New("EMAIL_MAX_ATTEMPTS must be at least 1")
	}
	if c.Mail.RetryBaseDelay < 0 {
		return errors.New("EMAIL_RETRY_BASE_DELAY must not be negative")
	}
	return nil
}

// resolve applies the recipient fallbacks. OWNER_EMAIL is checked before
// ADMIN_EMAIL so that setting both routes booking alerts to the owner.
func (c *Config) resolve() {
	if c.Mail.OwnerEmail == "" {
		c.Mail.OwnerEmail = c.Mail.AdminEmail
	}
	if c.Mail.AdminEmail == "" {
		c.Mail.AdminEmail = c.Mail.SMTP.Username
	}
	if c.Branding.SupportEmail == "" {
		c.Branding.SupportEmail = firstNonEmpty(c.Mail.AdminEmail, FallbackSupportEmail)
	}
}

// MailEnabled reports whether the selected provider has credentials.
func (c Config) MailEnabled() bool {
	switch c.Mail.Provider {
	case MailProviderSMTP:
		return c.Mail.SMTP.Enabled()
	case MailProviderSendGrid:
		return c.Mail.SendGrid.Enabled()
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
