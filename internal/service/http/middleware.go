package httpsvc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Заголовки-заглушки аутентификации: сессии выдаёт внешний сервис.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Role — роль вызывающего.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller — аутентифицированный пользователь запроса.
type Caller struct {
	UserID string
	Role   Role
}

// IsAdmin сообщает, есть ли у вызывающего права администратора.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

type callerKey struct{}

// CallerFrom возвращает вызывающего из контекста запроса.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// authenticate читает X-User-ID / X-User-Role. Без пользователя 401.
func authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Kind: "Unauthorized", Message: "authentication required"}})
			return
		}
		role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
		if role != RoleAdmin {
			role = RoleUser
		}
		ctx := context.WithValue(r.Context(), callerKey{}, Caller{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin пропускает только администраторов, остальным 403.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok || !caller.IsAdmin() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: errorDetail{Kind: "Forbidden", Message: "admin role required"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogging пишет строку лога на каждый запрос.
func requestLogging(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := requestLogger(r, logger).WithFields(log.Fields{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Info("http request")
		})
	}
}

func requestLogger(r *http.Request, logger *log.Entry) *log.Entry {
	fields := log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		fields["request_id"] = id
	}
	if caller, ok := CallerFrom(r.Context()); ok {
		fields["user_id"] = caller.UserID
	}
	return logger.WithFields(fields)
}
