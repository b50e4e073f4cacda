package web

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/stefchosov/walkdata/internal"
)

type viewData struct {
	Version    string
	CSRFToken  string
	IsLoggedIn bool
	UserID     uuid.UUID
	Flashes    []any
	InputForm  url.Values
	Data       any
}

// prepViewData prepares the data that will be passed to the view.
// Should be called before the view is written, because the session could
// still be altered at this point.
func (s *Server) prepViewData(r *http.Request, data any) (*viewData, error) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return nil, err
	}

	userID, loggedIn := sess.UserID()

	return &viewData{
		Version:    internal.BuildRevision,
		CSRFToken:  csrf.Token(r),
		IsLoggedIn: loggedIn,
		UserID:     userID,
		Flashes:    sess.ConsumeFlashes(),
		InputForm:  r.Form,
		Data:       data,
	}, nil
}
