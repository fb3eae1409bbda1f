package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/isdelr/nip-auth/internal/api/response"
	"github.com/isdelr/nip-auth/internal/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// requestLogger attaches a request-scoped zerolog logger carrying chi's
// request id and writes one access log line per request.
func requestLogger() func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(log.Logger)
	withFields := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := middleware.GetReqID(r.Context()); id != "" {
				zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
					return c.Str("req_id", id)
				})
			}
			next.ServeHTTP(w, r)
		})
	}
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})
	remoteAddr := hlog.RemoteAddrHandler("ip")

	return func(next http.Handler) http.Handler {
		return withLogger(withFields(remoteAddr(access(next))))
	}
}

// recoverer turns a panic into a 500 envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic")
				response.Failure(w, http.StatusInternalServerError, common.ErrInternal.Error())
			}
		}()
		next.ServeHTTP(w, r)
	})
}
