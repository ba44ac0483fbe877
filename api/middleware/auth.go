package middleware

import (
	"net/http"
	"strings"

	"github.com/readstack/readstack-backend/api/responses"
	pkgAuth "github.com/readstack/readstack-backend/pkg/auth"
	"github.com/readstack/readstack-backend/pkg/config"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

// Auth validates the bearer token and seeds the request context with the
// acting member's id and role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			memberID := claims.MemberID.String()
			role := string(claims.Role)

			ctx := WithMemberID(r.Context(), memberID)
			ctx = WithRole(ctx, role)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"member_id":  memberID,
					"actor_role": role,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts both "Bearer <token>" and a bare token value.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[len("bearer "):])
	}
	return raw
}
