package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/pysugar/calendar-nexus/internal/auth/identity"
)

// ChannelHeader carries the messaging-channel identifier for channel-linked
// principals.
const ChannelHeader = "X-Channel-Id"

type principalKey struct{}

// RequirePrincipal resolves the caller to a tenant before the handler runs.
// Bearer tokens take precedence over the channel header when both appear.
func (h *Handlers) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFromRequest(r)

		resolved, err := h.resolver.Resolve(r.Context(), principal)
		if err != nil {
			h.writeError(w, r, err, principal.ChannelID)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, resolved)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromRequest(r *http.Request) identity.Principal {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return identity.Principal{BearerToken: strings.TrimPrefix(auth, "Bearer ")}
	}
	return identity.Principal{ChannelID: r.Header.Get(ChannelHeader)}
}

// resolvedPrincipal returns the identity stashed by RequirePrincipal.
func resolvedPrincipal(ctx context.Context) *identity.Resolved {
	res, _ := ctx.Value(principalKey{}).(*identity.Resolved)
	return res
}
