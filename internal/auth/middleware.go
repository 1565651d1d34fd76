package auth

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

type ctxKey int

const userKey ctxKey = iota

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Principal, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, provider, subject, email string) (*store.User, error)
}

func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFrom(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userKey).(*store.User)
	return u, ok && u != nil
}

// UserID is empty for anonymous requests.
func UserID(ctx context.Context) string {
	if u, ok := UserFrom(ctx); ok {
		return u.ID
	}
	return ""
}

// Middleware requires a bearer token, verifies it and loads (or creates) the
// matching local user.
func Middleware(v TokenVerifier, users UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				httputil.WriteError(w, r, apperr.Unauthorized("missing bearer token"))
				return
			}

			p, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Warn("[AUTH] Token rejected")
				httputil.WriteError(w, r, apperr.Unauthorized("invalid token"))
				return
			}

			u, err := users.UpsertUser(r.Context(), p.Provider, p.Subject, p.Email)
			if err != nil {
				httputil.WriteError(w, r, apperr.Internal("load user", err))
				return
			}
			log.WithFields(log.Fields{"user_id": u.ID, "provider": p.Provider}).Debug("[AUTH] Authenticated")
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
