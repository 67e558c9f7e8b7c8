package postgres

import (
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{
		Host:           "db",
		Port:           5433,
		User:           "rental",
		Password:       "secret",
		Database:       "bike_rental",
		SSLMode:        "disable",
		ConnectTimeout: 3,
	}

	assert.Equal(t,
		"host=db port=5433 user=rental password=secret dbname=bike_rental sslmode=disable connect_timeout=3 timezone=UTC application_name=bikerental",
		cfg.DSN())

	cfg.ConnectTimeout = 0
	assert.NotContains(t, cfg.DSN(), "connect_timeout")
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pq.Error{Code: UniqueViolationCode, Constraint: rentalIDConstraint}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"any constraint", unique, "", true},
		{"matching constraint", unique, rentalIDConstraint, true},
		{"wrapped", errors.Wrap(unique, "insert"), rentalIDConstraint, true},
		{"other constraint", unique, "email_logs_pkey", false},
		{"other code", &pq.Error{Code: "23503", Constraint: rentalIDConstraint}, rentalIDConstraint, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}
