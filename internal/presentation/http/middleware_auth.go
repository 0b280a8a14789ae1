package httppresentation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/auth"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability/logctx"
)

// accessRule is the route-level requirement for a path prefix.
type accessRule struct {
	prefix string
	open   bool
	roles  []string
}

// Rules are matched in order; paths matching none only require authentication.
var accessRules = []accessRule{
	{prefix: "/health", open: true},
	{prefix: "/metrics", open: true},
	{prefix: "/payment", roles: []string{auth.RoleAdmin}},
	{prefix: "/inventory", roles: []string{auth.RoleAdmin}},
}

func ruleFor(path string) accessRule {
	for _, r := range accessRules {
		if path == r.prefix || strings.HasPrefix(path, r.prefix+"/") {
			return r
		}
	}
	return accessRule{}
}

// withAuth authenticates the bearer credential and enforces the route-level rule.
// An invalid credential is treated like a missing one.
func (h *Handler) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := ruleFor(r.URL.Path)
		if rule.open {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := h.verifier.Verify(r.Header.Get("Authorization"))
		if err != nil {
			if !errors.Is(err, auth.ErrMissingCredential) {
				logctx.FromOr(r.Context(), h.log).Warn("http_auth_rejected",
					observability.F("route", routeFromContext(r.Context())),
					observability.F("error", err.Error()),
				)
			}
			writeError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		if len(rule.roles) > 0 && !principal.HasAnyRole(rule.roles...) {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), principal)
		ctx = logctx.With(ctx, logctx.FromOr(ctx, h.log).With(observability.F("subject", principal.Subject)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAnyRole is the handler-level check applied on top of the route rule.
func requireAnyRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		if !p.HasAnyRole(roles...) {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		next(w, r)
	}
}
