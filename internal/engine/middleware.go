package engine

import (
	"net/http"

	"github.com/arbiterhq/arbiter/internal/platform/httpx"
)

// RequireAny admits the request when the actor holds at least one of the
// given permissions. Requests without an actor are rejected outright.
func (s *Service) RequireAny(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := httpx.RequireActor(w, r.Context())
			if !ok {
				return
			}
			for _, code := range codes {
				held, err := s.HasPermission(r.Context(), actorID, code)
				if err != nil {
					httpx.RespondError(w, err)
					return
				}
				if held {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "actor lacks the required permission")
		})
	}
}

// RequireAll admits the request only when the actor holds every one of the
// given permissions.
func (s *Service) RequireAll(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := httpx.RequireActor(w, r.Context())
			if !ok {
				return
			}
			held, err := s.heldCodes(r.Context(), actorID)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			for _, code := range codes {
				if _, ok := held[code]; !ok {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "actor lacks permission "+code)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
