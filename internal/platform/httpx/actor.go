package httpx

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const actorKey ctxKey = iota

// ActorHeader carries the authenticated admin performing a request. The
// gateway in front of this service sets it after authentication.
const ActorHeader = "X-Actor-ID"

// WithActor extracts the acting user from the request headers and stores it
// on the context. Requests without a valid actor pass through; write
// endpoints that require one respond 401 themselves.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(ActorHeader); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), actorKey, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ActorID returns the acting user stored on the context, or nil when the
// request carried none.
func ActorID(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(actorKey).(uuid.UUID); ok {
		return &id
	}
	return nil
}

// RequireActor returns the acting user or writes a 401 and reports false.
func RequireActor(w http.ResponseWriter, ctx context.Context) (uuid.UUID, bool) {
	if id := ActorID(ctx); id != nil {
		return *id, true
	}
	Problem(w, http.StatusUnauthorized, "Unauthorized", "request is missing a valid "+ActorHeader+" header")
	return uuid.Nil, false
}
