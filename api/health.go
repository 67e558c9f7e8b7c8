package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pure-golang/bikerental/logger"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
	Port      int    `json:"port"`
	Mail      string `json:"mail"`
	Message   string `json:"message,omitempty"`
}

// health reports 503 when the database does not answer.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{
		Status:    "healthy",
		Database:  "PostgreSQL",
		Timestamp: a.opts.Now().UTC().Format(time.RFC3339),
		Port:      a.opts.Port,
		Mail:      "disabled",
		Message:   "Bike rental backend is running successfully!",
	}
	if a.opts.Notifier.Enabled() {
		res.Mail = "enabled"
	}

	if a.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := a.opts.DB.Ping(ctx); err != nil {
			logger.FromContextWithErr(r.Context(), err).Warn("Health check failed")
			res.Status = "unhealthy"
			res.Database = "unavailable"
			res.Message = ""
			writeJSON(w, http.StatusServiceUnavailable, res)
			return
		}
	}

	writeJSON(w, http.StatusOK, res)
}
