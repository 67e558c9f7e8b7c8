// Command admintoken prints a bearer token for the admin API routes.
//
//	ADMIN_JWT_SECRET=... admintoken -sub alice -ttl 12h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pure-golang/bikerental/api"
	"github.com/pure-golang/bikerental/config"
)

func main() {
	subject := flag.String("sub", "admin", "token subject, logged with every admin request")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	token, err := api.NewAdminToken(cfg.API.AdminJWTSecret, *subject, *ttl, time.Now())
	if err != nil {
		slog.Default().Error("failed to create token", "error", err.Error())
		os.Exit(1)
	}
	fmt.Println(token)
}
