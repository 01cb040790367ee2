// Package middleware adapts the sphereauth route guard to net/http.
package middleware

import (
	"context"
	"net/http"
	"net/url"

	sphereauth "github.com/alumnisphere/sphereauth"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [Guard] or
// [PageGuard].
func SessionFromContext(ctx context.Context) (*sphereauth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*sphereauth.Session)
	return sess, ok
}

// Guard protects an API route. Before the store is initialized it answers
// 503, without a session 401, with a session of the wrong role 403;
// otherwise the session is injected into the request context and the
// request proceeds.
func Guard(store *sphereauth.Store, allowed ...sphereauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			decision := store.GuardRoute(r.URL.Path, allowed...)
			switch decision.Kind {
			case sphereauth.DecisionPending:
				http.Error(w, "initializing", http.StatusServiceUnavailable)
			case sphereauth.DecisionRedirectLogin:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			case sphereauth.DecisionRedirectDenied:
				http.Error(w, "forbidden", http.StatusForbidden)
			case sphereauth.DecisionRender:
				sess, _ := store.CurrentUser()
				ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
				next.ServeHTTP(w, r.WithContext(ctx))
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}

// PageGuard protects a browser-facing route with the redirect semantics of
// the guard decision: anonymous visitors go to the login page with the
// requested destination in a "from" query parameter, sessions of the wrong
// role go to the not-authorized page. While the store is still
// initializing, nothing is rendered (204) so the wrong state never
// flashes.
func PageGuard(store *sphereauth.Store, allowed ...sphereauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			decision := store.GuardRoute(r.URL.Path, allowed...)
			switch decision.Kind {
			case sphereauth.DecisionPending:
				w.WriteHeader(http.StatusNoContent)
			case sphereauth.DecisionRedirectLogin:
				target := decision.RedirectTo + "?from=" + url.QueryEscape(decision.From)
				http.Redirect(w, r, target, http.StatusSeeOther)
			case sphereauth.DecisionRedirectDenied:
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
			case sphereauth.DecisionRender:
				sess, _ := store.CurrentUser()
				ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
				next.ServeHTTP(w, r.WithContext(ctx))
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}
