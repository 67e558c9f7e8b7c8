package api

import (
	"net/http"
	"strings"

	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mailer"
	"github.com/pure-golang/bikerental/render"
)

func (a *API) contact(w http.ResponseWriter, r *http.Request) {
	var msg render.ContactMessage
	if err := decodeJSON(w, r, a.cfg.MaxBodyBytes, &msg); err != nil {
		writeDecodeError(w, err)
		return
	}

	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Phone = strings.TrimSpace(msg.Phone)
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.Name == "" || msg.Email == "" || strings.TrimSpace(msg.Message) == "" {
		writeError(w, http.StatusBadRequest, "Name, email, and message are required")
		return
	}

	res, err := a.opts.Notifier.SendContact(r.Context(), msg)
	a.writeMailOutcome(w, r, res, err, "Message sent to admin", "Failed to send message")
}

func (a *API) testEmail(w http.ResponseWriter, r *http.Request) {
	res, err := a.opts.Notifier.SendTest(r.Context())
	a.writeMailOutcome(w, r, res, err, "Test email sent", "Failed to send test email")
}

// writeMailOutcome maps a synchronous send to a response. Transport details
// only go to the log.
func (a *API) writeMailOutcome(w http.ResponseWriter, r *http.Request, res mailer.Result, err error, okMsg, failMsg string) {
	switch {
	case err != nil:
		logger.FromContextWithErr(r.Context(), err).Error(failMsg)
		writeError(w, http.StatusInternalServerError, failMsg)
	case res.Success:
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: okMsg, MessageID: res.MessageID})
	case res.Reason == mailer.ReasonDisabled:
		writeError(w, http.StatusServiceUnavailable, "Email not configured")
	case res.Reason == mailer.ReasonMissing(mailer.RoleAdmin):
		writeError(w, http.StatusServiceUnavailable, "Admin email not configured")
	case res.Reason == mailer.ReasonMissing(mailer.RoleCustomer):
		writeError(w, http.StatusUnprocessableEntity, "Customer email is missing")
	default:
		logger.FromContext(r.Context()).Error(failMsg, "reason", res.Reason)
		writeError(w, http.StatusInternalServerError, failMsg)
	}
}
