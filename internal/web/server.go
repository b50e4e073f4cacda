package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/stefchosov/walkdata/internal/auth"
	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/errorz"
	"github.com/stefchosov/walkdata/internal/geo"
	"github.com/stefchosov/walkdata/internal/krypto"
	"github.com/stefchosov/walkdata/internal/walkability"
	"github.com/stefchosov/walkdata/internal/web/sessions"
)

const (
	csrfTokenCookieName = "wd-csrf"
	csrfTokenField      = "csrf_token"
)

// errInvalidCredentials trips when a login attempt fails. Unknown usernames
// and wrong passwords both end up here, the user is told nothing more.
var errInvalidCredentials = errors.New("invalid credentials")

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	ViewRenderer ViewRenderer
	AuthService  *auth.Service
	SearchSvc    *walkability.Service
	SessionStore *sessions.Store
	EmailSender  email.Sender
	EmailFrom    email.Address
	DistFS       http.FileSystem
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	s.decoder.IgnoreUnknownKeys(true)

	// Most non-static endpoints below are created using the newHandler
	// functions. These return handlers that map between HTTP requests,
	// target functions and HTTP responses. The request mapping and
	// response writing is customizable per route.

	// Homepage endpoint.
	s.public("GET /{$}", s.staticHandler("home"))

	// Register user endpoints.
	{
		s.publicOnly("GET /register", s.staticHandler("register-user"))
	}
	{
		h := newHandler(s, deps.AuthService.RegisterUser)
		h.onSuccess(func(r result[auth.Registration, uuid.UUID]) error {
			return flashAndRedirect(r.shared, "Your account has been created, login below.", "/login")
		})
		h.onFail(failToForm("/register", registerErrMessage))

		s.publicOnly("POST /register", h)
	}

	// Login user endpoints.
	{
		s.publicOnly("GET /login", s.staticHandler("login-user"))
	}
	{
		h := newHandler(s, s.authenticate)
		h.onSuccess(func(r result[auth.Credentials, authenticated]) error {
			// We clear the CSRF token to provide defense in depth against
			// fixation attacks. A new CSRF token will be generated on the
			// next GET request after the redirect.
			http.SetCookie(r.w, &http.Cookie{
				Name:   csrfTokenCookieName,
				MaxAge: -1,
			})

			r.sess.SetUserID(r.out.userID)
			err := r.s.deps.SessionStore.Save(r.r, r.w, r.sess)
			if err != nil {
				return err
			}

			http.Redirect(r.w, r.r, "/dashboard", http.StatusFound)
			return nil
		})
		h.onFail(failToForm("/login", loginErrMessage))

		s.publicOnly("POST /login", h)
	}

	// Logout user endpoint.
	{
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			sess.DeleteUserID()
			err = s.deps.SessionStore.Save(r, w, sess)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			http.Redirect(w, r, "/", http.StatusFound)
		})

		s.loggedIn("POST /logout", h)
	}

	// Dashboard endpoint: the saved searches with their walkability
	// records, sortable and filterable.
	{
		h := newHandler(s, s.dashboard)
		h.onSuccess(func(r result[walkability.ListFilter, dashboardData]) error {
			return r.s.writeView(r.w, r.r, "dashboard", r.out)
		})

		s.loggedIn("GET /dashboard", h)
	}

	// Save a new search.
	{
		h := newHandler(s, s.saveSearch)
		h.onSuccess(func(r result[walkability.Address, walkability.SaveResult]) error {
			return flashAndRedirect(r.shared, saveMessage(r.in, r.out), "/dashboard")
		})
		h.onFail(failToForm("/dashboard", saveErrMessage))

		s.loggedIn("POST /searches", h)
	}

	// Delete searches by their ids.
	{
		type deleteForm struct {
			SearchIDs []int
		}

		h := newInputHandler(s, func(ctx context.Context, in deleteForm) error {
			userID, _ := userIDFromCtx(ctx)
			return deps.SearchSvc.Delete(ctx, userID, in.SearchIDs)
		})
		h.onSuccess(func(r result[deleteForm, struct{}]) error {
			return flashAndRedirect(r.shared, "The selected searches were removed.", "/dashboard")
		})

		s.loggedIn("POST /searches/delete", h)
	}

	// Distinct filter values, used by the cascading city/state dropdowns.
	{
		h := newHandler(s, func(ctx context.Context, in walkability.DistinctFilter) ([]string, error) {
			userID, _ := userIDFromCtx(ctx)
			return deps.SearchSvc.DistinctValues(ctx, userID, in)
		})
		h.onSuccess(func(r result[walkability.DistinctFilter, []string]) error {
			r.w.Header().Set("Content-Type", "application/json")
			return json.NewEncoder(r.w).Encode(struct {
				Values []string `json:"values"`
			}{Values: r.out})
		})

		s.loggedIn("GET /filter-values", h)
	}

	// Email the search results to the provided address.
	{
		type emailForm struct {
			Recipient email.Address
		}

		h := newInputHandler(s, func(ctx context.Context, in emailForm) error {
			userID, _ := userIDFromCtx(ctx)

			rows, err := deps.SearchSvc.List(ctx, userID, walkability.ListFilter{})
			if err != nil {
				return err
			}

			return deps.EmailSender.Send(ctx, deps.EmailFrom, in.Recipient, walkability.ReportSubject, walkability.Report(rows))
		})
		h.onSuccess(func(r result[emailForm, struct{}]) error {
			return flashAndRedirect(r.shared, "Your search results are on their way to "+string(r.in.Recipient)+".", "/dashboard")
		})
		h.onFail(failToForm("/dashboard", emailErrMessage))

		s.loggedIn("POST /searches/email", h)
	}

	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(s.deps.DistFS)))

	// Wrap the mux with global middlewares.
	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Secure(cfg.SecureCookie),
	)

	middlewares := []func(http.Handler) http.Handler{
		csrfMW,
		sessionMiddleware(s),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type authenticated struct {
	userID uuid.UUID
}

// authenticate adapts the auth service to a target function. A failed
// attempt becomes errInvalidCredentials regardless of the cause.
func (s *Server) authenticate(ctx context.Context, c auth.Credentials) (authenticated, error) {
	userID, ok, err := s.deps.AuthService.Authenticate(ctx, c)
	if err != nil {
		return authenticated{}, err
	}

	if !ok {
		return authenticated{}, errInvalidCredentials
	}

	return authenticated{userID: userID}, nil
}

// dashboardData is the view data for the dashboard.
type dashboardData struct {
	Rows      []walkability.Row
	Cities    []string
	States    []string
	Filter    walkability.ListFilter
	SortAttrs []string
}

func (s *Server) dashboard(ctx context.Context, filter walkability.ListFilter) (dashboardData, error) {
	userID, _ := userIDFromCtx(ctx)

	rows, err := s.deps.SearchSvc.List(ctx, userID, filter)
	if err != nil {
		return dashboardData{}, err
	}

	cities, err := s.deps.SearchSvc.DistinctValues(ctx, userID, walkability.DistinctFilter{Column: "city"})
	if err != nil {
		return dashboardData{}, err
	}

	states, err := s.deps.SearchSvc.DistinctValues(ctx, userID, walkability.DistinctFilter{Column: "state"})
	if err != nil {
		return dashboardData{}, err
	}

	return dashboardData{
		Rows:      rows,
		Cities:    cities,
		States:    states,
		Filter:    filter,
		SortAttrs: walkability.SortAttrs(),
	}, nil
}

func (s *Server) saveSearch(ctx context.Context, addr walkability.Address) (walkability.SaveResult, error) {
	userID, _ := userIDFromCtx(ctx)
	return s.deps.SearchSvc.Save(ctx, userID, addr)
}

func saveMessage(addr walkability.Address, res walkability.SaveResult) string {
	place := fmt.Sprintf("%s, %s, %s", addr.Street, addr.City, addr.State)

	switch {
	case res.Record == nil:
		return fmt.Sprintf("No walkability data is available for %s (block group %s).", place, res.Search.CensusBlock)
	case res.Existed:
		return fmt.Sprintf("You already saved %s, its walkability index is %.2f.", place, res.Record.NationalWalkabilityIndex)
	default:
		return fmt.Sprintf("Saved %s with walkability index %.2f.", place, res.Record.NationalWalkabilityIndex)
	}
}

func registerErrMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, auth.ErrDuplicateUsername):
		return "That username is already in use.", true
	case errors.Is(err, auth.ErrDuplicateEmail):
		return "That email address is already registered.", true
	case isInvalidInput(err):
		return "Please provide a valid username, name, email address and a password of at least 8 characters.", true
	}

	return "", false
}

func loginErrMessage(err error) (string, bool) {
	// Malformed credentials get the same message as wrong ones, a login
	// form should not explain which part was off.
	if errors.Is(err, errInvalidCredentials) || isInvalidInput(err) {
		return "Login failed: invalid username or password.", true
	}

	return "", false
}

func saveErrMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, geo.ErrAddressNotFound):
		return "Could not find that address, please check it and try again.", true
	case errors.Is(err, geo.ErrGeographyNotFound):
		return "Could not determine the census block group for that address.", true
	case isInvalidInput(err):
		return "Please fill in street, city and state.", true
	}

	return "", false
}

func emailErrMessage(err error) (string, bool) {
	if isInvalidInput(err) {
		return "Please provide a valid email address.", true
	}

	return "", false
}

func isInvalidInput(err error) bool {
	var invalidInput errorz.InvalidInput
	return errors.As(err, &invalidInput)
}

func (s *Server) staticHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.writeView(w, r, name, nil)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
	}
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) error {
	vd, err := s.prepViewData(r, data)
	if err != nil {
		return err
	}

	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	if sess.NeedsSave() {
		err = s.deps.SessionStore.Save(r, w, sess)
		if err != nil {
			return err
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return s.deps.ViewRenderer.Render(w, name, vd)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errorz.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if errors.Is(err, walkability.ErrUnknownAttribute) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	if isInvalidInput(err) {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	// Anything else is a backend failure. Log the diagnostic detail, the
	// caller only gets a generic message.
	s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
