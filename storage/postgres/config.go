package postgres

import (
	"fmt"
	"time"
)

// Config contains PostgreSQL connection parameters.
type Config struct {
	Host            string        `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port            int           `envconfig:"POSTGRES_PORT" default:"5432"`
	User            string        `envconfig:"POSTGRES_USER" default:"postgres"`
	Password        string        `envconfig:"POSTGRES_PASSWORD"`
	Database        string        `envconfig:"POSTGRES_DB" default:"bike_rental"`
	SSLMode         string        `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	ConnectTimeout  int           `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"5"`
	MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
	QueryTimeout    time.Duration `envconfig:"POSTGRES_QUERY_TIMEOUT" default:"10s"`
	// Migrate applies embedded migrations on Connect.
	Migrate bool `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", c.ConnectTimeout)
	}
	// Dates are stored as DATE and read back in UTC.
	return dsn + " timezone=UTC application_name=bikerental"
}
