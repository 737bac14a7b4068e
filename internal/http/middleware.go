package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"expohub/internal/auth"
	"expohub/internal/models"
	"expohub/internal/util"
)

const (
	CookieName   = "session_id"
	APIKeyHeader = "apikey"
)

// tokenFrom reads the session token from the cookie, falling back to a bearer header.
func tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := tokenFrom(r); tok != "" {
			u, err := s.auth.UserFromToken(r.Context(), tok)
			if err == nil {
				r = r.WithContext(auth.WithUser(r.Context(), u))
			} else {
				s.log.Debug("session rejected", zap.Error(err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth guards API routes.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFrom(r.Context()); !ok {
			util.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePage guards page routes: anonymous visitors go to the login page.
func (s *Server) requirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFrom(r.Context()); !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	want := []byte(s.cfg.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(want) > 0 && subtle.ConstantTimeCompare([]byte(r.Header.Get(APIKeyHeader)), want) != 1 {
			util.Error(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKeyCategory struct{}

// withCategory resolves the {category} URL segment; unknown categories are 404.
func (s *Server) withCategory(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := models.CategoryFromPath(chi.URLParam(r, "category"))
		if !ok {
			util.Error(w, http.StatusNotFound, "unknown category")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyCategory{}, c)))
	})
}

func categoryFrom(ctx context.Context) models.Category {
	c, _ := ctx.Value(ctxKeyCategory{}).(models.Category)
	return c
}

// accessLog records method, path, status and duration, and feeds the request metrics
// labelled by route pattern.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.RequestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed.Truncate(time.Millisecond)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// WithTimeout bounds every request.
func WithTimeout(next http.Handler, d time.Duration) http.Handler {
	return http.TimeoutHandler(next, d, `{"error":"request timeout"}`)
}
