package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/fetchvault/ports"
)

type contextKey string

const tenantKey contextKey = "tenant"

// tenantFrom returns the authenticated tenant stored by the auth
// middleware.
func tenantFrom(ctx context.Context) (ports.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(ports.Tenant)
	return t, ok
}

// authenticate resolves the API key to a tenant. Keys are of the form
// "<tenant_id>.<secret>"; only a bcrypt hash of the secret is stored.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			h.authFailure(w, "missing_key", "missing API key")
			return
		}

		tenantID, secret, ok := strings.Cut(key, ".")
		if !ok || tenantID == "" || secret == "" {
			h.authFailure(w, "malformed_key", "malformed API key")
			return
		}

		tenant, err := h.tenants.Get(r.Context(), tenantID)
		if err != nil {
			h.authFailure(w, "unknown_tenant", "invalid API key")
			return
		}
		if !h.hasher.Compare(tenant.APIKeyHash, secret) {
			h.authFailure(w, "bad_secret", "invalid API key")
			return
		}
		if tenant.Status != "active" {
			writeError(w, http.StatusForbidden, "account_suspended", "account is suspended")
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) authFailure(w http.ResponseWriter, reason, msg string) {
	if h.metrics != nil {
		h.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", msg)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-API-Key")
}

// recordOutcome runs inside the auth middleware. It counts the request
// under the tenant's tier and feeds the response status into the abuse
// detector after the handler runs.
func (h *Handler) recordOutcome(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		tenant, ok := tenantFrom(r.Context())
		if !ok {
			return
		}

		if h.metrics != nil {
			status := statusLabel(sw.status)
			h.metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status, string(tenant.Tier)).Inc()
			h.metrics.RequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed.Seconds())
		}

		if err := h.rates.RecordOutcome(r.Context(), tenant.ID, sw.status, h.clock.Now()); err != nil {
			h.logger.Error().Err(err).
				Str("tenant_id", tenant.ID).
				Msg("outcome recording failed")
		}
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics != nil {
			h.metrics.RequestsInFlight.Inc()
			defer h.metrics.RequestsInFlight.Dec()
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func statusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
