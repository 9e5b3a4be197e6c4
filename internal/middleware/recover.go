package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// panicBody mirrors the ledger error shape so clients see one 500 format
// whether the failure was a mapped error or a panic.
const panicBody = `{"error":"internal server error","code":"internal","retryable":false}`

// Recoverer converts a handler panic into a 500 response. The stack trace is
// logged with the request id and never sent to the client.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				// net/http uses this sentinel to abort the connection; let it through.
				panic(rec)
			}
			slog.Error("panic recovered",
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(panicBody))
		}()
		next.ServeHTTP(w, r)
	})
}
