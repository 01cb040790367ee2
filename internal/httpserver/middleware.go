package httpserver

import (
	"net/http"
	"strings"
	"time"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}

// authMiddleware checks the bearer token and requires that it names the
// store's current session. The token is only a handle; the session store
// stays authoritative, so a logout immediately invalidates every token
// issued for that session.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
			return
		}

		sessionID, err := s.tokens.Validate(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token", "unauthorized")
			return
		}

		sess, loading := s.store.CurrentUser()
		if loading {
			writeError(w, http.StatusServiceUnavailable, "initializing", "unknown")
			return
		}
		if sess == nil || sess.ID != sessionID {
			writeError(w, http.StatusUnauthorized, "session expired", "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
