package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/warp/folio-ledger/folio"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

type ctxKey int

const scopeKey ctxKey = iota

// RequireTenant rejects requests without X-Tenant-ID and stores the caller
// scope on the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, string(folio.KindValidation),
				"missing "+HeaderTenantID+" header", map[string]string{"field": "tenant_id"})
			return
		}
		scope := folio.Scope{
			TenantID: folio.TenantID(tenant),
			Actor:    strings.TrimSpace(r.Header.Get(HeaderActorID)),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey, scope)))
	})
}

func scopeFrom(r *http.Request) folio.Scope {
	scope, _ := r.Context().Value(scopeKey).(folio.Scope)
	return scope
}

func tenantFrom(ctx context.Context) folio.TenantID {
	scope, _ := ctx.Value(scopeKey).(folio.Scope)
	return scope.TenantID
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(logrus.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"tenant_id":   r.Header.Get(HeaderTenantID),
			})
			switch {
			case ww.Status() >= 500:
				entry.Error("request failed")
			case ww.Status() >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
		})
	}
}
