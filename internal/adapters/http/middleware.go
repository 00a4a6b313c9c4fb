package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

type ctxKey string

const (
	ctxKeyRequest ctxKey = "request_meta"
	ctxKeyClaims  ctxKey = "auth_claims"
)

const maxRequestIDLength = 128

// requestMeta is shared by every middleware layer of one request. Inner layers fill in the
// caller once authentication succeeds so the access log can report it.
type requestMeta struct {
	id     string
	userID string
}

func requestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := &requestMeta{id: sanitizeRequestID(r.Header.Get("X-Request-Id"))}
		if meta.id == "" {
			meta.id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", meta.id)
		ctx := context.WithValue(r.Context(), ctxKeyRequest, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeRequestID drops caller supplied ids that are oversized or not printable ASCII.
func sanitizeRequestID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRequestIDLength {
		return ""
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x21 || raw[i] > 0x7e {
			return ""
		}
	}
	return raw
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger(r.Context()).ErrorContext(r.Context(), "panic recovered",
					"operation", "recover",
					"outcome", "failure",
					"method", r.Method,
					"route", routePattern(r),
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if r.statusCode == 0 {
		r.statusCode = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

// accessLogMiddleware writes one line per request. Paths are logged as route patterns so
// transaction and dispute ids stay out of the access log.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status()
		outcome := "success"
		level := slog.LevelInfo
		switch {
		case status >= 500:
			outcome, level = "failure", slog.LevelError
		case status >= 400:
			outcome, level = "rejected", slog.LevelWarn
		}
		httpLogger(r.Context()).Log(r.Context(), level, "http request",
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"route", routePattern(r),
			"status_code", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func metaFromContext(ctx context.Context) *requestMeta {
	if meta, ok := ctx.Value(ctxKeyRequest).(*requestMeta); ok {
		return meta
	}
	return &requestMeta{}
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeMissingBearerError(r.Context(), w, "authenticate")
			return
		}
		claims, err := h.verifier.Verify(raw)
		if err != nil {
			writeMappedError(r.Context(), w, "authenticate", err)
			return
		}
		metaFromContext(r.Context()).userID = claims.UserID.String()
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFromContext(r.Context()).IsAdmin() {
			writeMappedError(r.Context(), w, "authorize", domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) (ports.AuthClaims, bool) {
	v := ctx.Value(ctxKeyClaims)
	claims, ok := v.(ports.AuthClaims)
	return claims, ok
}

func actorFromContext(ctx context.Context) domain.Actor {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return domain.Actor{}
	}
	return domain.Actor{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
}

// mapDomainError returns the status, code and client-safe message for err.
func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", detail(err, domain.ErrInvalidInput)
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "access denied"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", detail(err, domain.ErrNotFound)
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "IDEMPOTENCY_CONFLICT", detail(err, domain.ErrIdempotencyConflict)
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", detail(err, domain.ErrConflict)
	case errors.Is(err, domain.ErrEncryption):
		return http.StatusInternalServerError, "ENCRYPTION_ERROR", "failed to secure transaction data"
	case errors.Is(err, domain.ErrDecryption):
		return http.StatusInternalServerError, "DECRYPTION_ERROR", "failed to read transaction data"
	case errors.Is(err, domain.ErrNotification):
		return http.StatusInternalServerError, "NOTIFICATION_ERROR", "failed to send notification"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}
