package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/stefchosov/walkdata/internal/errorz"
	"github.com/stefchosov/walkdata/internal/web/sessions"
)

// shared holds the request data every handler callback needs.
type shared struct {
	s    *Server
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
}

// result is the result of a succesful request.
// It contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	shared
	in  IN
	out OUT
}

// handler is a generic HTTP handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target function with that value.
// 3. Writes a response via the onSuccess callback.
//
// Errors are handled by the onFail callback, which defaults to the server
// error handler.
type handler[IN, OUT any] struct {
	s       *Server
	reqToIn func(shared) (IN, error)
	target  func(context.Context, IN) (OUT, error)
	success func(result[IN, OUT]) error
	fail    func(shared, error)
}

func newHandler[IN, OUT any](srv *Server, targetFunc func(context.Context, IN) (OUT, error)) *handler[IN, OUT] {
	return &handler[IN, OUT]{
		s: srv,
		reqToIn: func(sh shared) (IN, error) {
			return defaultReqToIn[IN](srv, sh)
		},
		target: targetFunc,
		fail: func(sh shared, err error) {
			srv.handleError(sh.w, sh.r, err)
		},
	}
}

// newInputHandler is like newHandler for target functions without output.
func newInputHandler[IN any](srv *Server, targetFunc func(context.Context, IN) error) *handler[IN, struct{}] {
	return newHandler(srv, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// onSuccess overwrites the function that writes the response.
func (h *handler[IN, OUT]) onSuccess(fn func(result[IN, OUT]) error) *handler[IN, OUT] {
	h.success = fn
	return h
}

// onFail overwrites the function that handles errors.
func (h *handler[IN, OUT]) onFail(fn func(shared, error)) *handler[IN, OUT] {
	h.fail = fn
	return h
}

func (h *handler[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		h.s.handleError(w, r, err)
		return
	}

	sh := shared{
		s:    h.s,
		w:    w,
		r:    r,
		sess: sess,
	}

	in, err := h.reqToIn(sh)
	if err != nil {
		h.fail(sh, err)
		return
	}

	out, err := h.target(r.Context(), in)
	if err != nil {
		h.fail(sh, err)
		return
	}

	err = h.success(result[IN, OUT]{
		shared: sh,
		in:     in,
		out:    out,
	})
	if err != nil {
		h.s.handleError(w, r, err)
		return
	}
}

// defaultReqToIn is the default way to map a request to a struct.
func defaultReqToIn[IN any](srv *Server, sh shared) (IN, error) {
	var in IN
	err := sh.r.ParseForm()
	if err != nil {
		return in, err
	}

	// Remove the CSRF token from the form, it won't need to be mapped
	// to any target types and the decoder will fail on it.
	sh.r.Form.Del(csrfTokenField)

	err = srv.decoder.Decode(&in, sh.r.Form)
	return in, decodeError(err)
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}

// flashAndRedirect adds a flash message to the session and redirects.
func flashAndRedirect(sh shared, msg, target string) error {
	sh.sess.AddFlash(msg)
	err := sh.s.deps.SessionStore.Save(sh.r, sh.w, sh.sess)
	if err != nil {
		return err
	}

	http.Redirect(sh.w, sh.r, target, http.StatusFound)
	return nil
}

// failToForm returns an onFail callback that converts user-correctable
// errors to a flash message and sends the user back to the form. Errors
// msgFor does not recognize go to the server error handler.
func failToForm(route string, msgFor func(error) (string, bool)) func(shared, error) {
	return func(sh shared, err error) {
		msg, ok := msgFor(err)
		if !ok {
			sh.s.handleError(sh.w, sh.r, err)
			return
		}

		if fErr := flashAndRedirect(sh, msg, route); fErr != nil {
			sh.s.handleError(sh.w, sh.r, fErr)
		}
	}
}
