package api

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/handlers"
)

// cors allows the configured origins. Outside production any localhost origin is allowed too.
func (a *API) cors() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOriginValidator(a.originAllowed),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{
			"Content-Type", "Authorization", "X-Requested-With", IdempotencyHeader,
		}),
		handlers.ExposedHeaders([]string{"X-Trace-Id", ReplayedHeader}),
		handlers.AllowCredentials(),
		handlers.MaxAge(86400),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}

func (a *API) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(a.cfg.AllowedOrigins, origin) {
		return true
	}
	if a.cfg.Env == EnvProduction {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
