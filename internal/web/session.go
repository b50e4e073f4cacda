package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/web/sessions"
)

// sessionMiddleware is a middleware that creates a session and injects it in
// the context. When the session holds an authenticated user id, that id is
// injected in the context as well.
func sessionMiddleware(srv *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := srv.deps.SessionStore.Get(r)
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			ctx := ctxWithSession(r.Context(), sess)

			if userID, ok := sess.UserID(); ok {
				ctx = ctxWithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxKey string

const (
	sessionCtxKey ctxKey = "_session"
	userIDCtxKey  ctxKey = "_userID"
)

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}

func ctxWithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// userIDFromCtx returns the authenticated user id. The id is only present
// on requests that passed the session middleware while logged in, handlers
// behind the loggedIn gate can rely on it. The id is passed explicitly to
// the services from here, business logic never consults the session.
func userIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDCtxKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}

	return userID, true
}
