package smtp

import (
	netmail "net/mail"
	"time"

	"github.com/pure-golang/bikerental/mail"
)

// ImplicitTLSPort is the SMTPS port where TLS starts before the SMTP greeting.
const ImplicitTLSPort = 465

// Config contains SMTP connection parameters.
// Sending is enabled only when Host, Username and Password are all set.
type Config struct {
	Host     string        `envconfig:"EMAIL_HOST"`                  // smtp.gmail.com
	Port     int           `envconfig:"EMAIL_PORT" default:"587"`    // 587 for STARTTLS, 465 for implicit TLS
	Username string        `envconfig:"EMAIL_USER"`                  // username or email
	Password string        `envconfig:"EMAIL_PASS"`                  // password or app password
	From     string        `envconfig:"EMAIL_FROM"`                  // defaults to Username
	Insecure bool          `envconfig:"EMAIL_INSECURE"`              // skip certificate verification
	Timeout  time.Duration `envconfig:"EMAIL_TIMEOUT" default:"30s"` // dial and I/O deadline
}

// Enabled reports whether all credentials are configured.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// ImplicitTLS reports whether the connection is TLS from the first byte.
func (c Config) ImplicitTLS() bool {
	return c.Port == ImplicitTLSPort
}

// SenderAddress is EMAIL_FROM, falling back to the SMTP user.
// EMAIL_FROM may carry a display name: "Bike Rental <noreply@example.com>".
func (c Config) SenderAddress() mail.Address {
	raw := c.From
	if raw == "" {
		raw = c.Username
	}
	if parsed, err := netmail.ParseAddress(raw); err == nil {
		return mail.Address{Name: parsed.Name, Address: parsed.Address}
	}
	return mail.Address{Address: raw}
}
