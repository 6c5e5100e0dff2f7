package webhook

import (
	"context"
	"log"
	"net/http"
	"time"

	"fuelflow/auth"
)

type contextKey string

const admissionKey contextKey = "webhook.admission"

// AdmissionFrom returns the gate admission stored on the request context, if
// any.
func AdmissionFrom(ctx context.Context) (auth.Admission, bool) {
	adm, ok := ctx.Value(admissionKey).(auth.Admission)
	return adm, ok
}

// RequireAuth admits requests through the gate before the handler runs.
// Token-authenticated requests get their claims attached to the context for
// audit logging.
func RequireAuth(gate *auth.Gate, next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adm, err := gate.Admit(r.Header.Get("Authorization"), r.Header.Get("X-API-Key"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if adm.Claims != nil {
			logger.Printf("webhook admitted method=%s action=%s request_id=%s",
				adm.Method, adm.Claims.Action, adm.Claims.RequestID)
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), admissionKey, adm)))
	})
}

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Printf(
			"request method=%s path=%s status=%d duration=%s",
			r.Method,
			r.URL.Path,
			rec.status,
			time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
