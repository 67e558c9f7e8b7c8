package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/pure-golang/bikerental/logger"
)

const panicBody = `{"success":false,"message":"Internal server error occurred"}`

// Recovery recovers a handler panic, logs it with the stack on ERROR level
// and answers 500 with a JSON body.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			logger.FromContext(r.Context()).
				With("err", err).
				With("stack", stackLines(debug.Stack())).
				Error("Panic recovered from handler")

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(panicBody))
		}()

		next.ServeHTTP(w, r)
	})
}

func stackLines(raw []byte) []string {
	var stack []string
	for _, line := range strings.Split(strings.ReplaceAll(string(raw), "\t", ""), "\n") {
		if line != "" {
			stack = append(stack, line)
		}
	}
	return stack
}
