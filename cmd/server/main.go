package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gsessions "github.com/gorilla/sessions"
	"github.com/stefchosov/walkdata/assets"
	"github.com/stefchosov/walkdata/internal"
	"github.com/stefchosov/walkdata/internal/auth"
	authdb "github.com/stefchosov/walkdata/internal/auth/db"
	"github.com/stefchosov/walkdata/internal/db"
	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/email/postmark"
	"github.com/stefchosov/walkdata/internal/geo"
	"github.com/stefchosov/walkdata/internal/geo/census"
	"github.com/stefchosov/walkdata/internal/geo/nominatim"
	"github.com/stefchosov/walkdata/internal/migrate"
	"github.com/stefchosov/walkdata/internal/walkability"
	walkdb "github.com/stefchosov/walkdata/internal/walkability/db"
	"github.com/stefchosov/walkdata/internal/web"
	"github.com/stefchosov/walkdata/internal/web/sessions"
	"github.com/stefchosov/walkdata/internal/web/view"
	"github.com/stefchosov/walkdata/migrations"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	sqlDB, err := db.OpenSQLite(cfg.dbFile, true)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer sqlDB.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Second*60)
	defer cancel()

	meta := migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  internal.BuildRevisionTime,
	}

	migrated, err := migrate.RunFS(migrateCtx, sqlDB, migrations.FS, meta)
	if err != nil {
		logger.Error("failed to run migrations", "error", err)
		return 1
	}

	for _, m := range migrated {
		logger.Info("ran migration", "sequence", m.Sequence, "filename", m.Filename)
	}

	authSvc, err := auth.NewService(authdb.New(sqlDB))
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	geoClient := &http.Client{
		Timeout: cfg.geo.timeout,
	}

	resolver := geo.NewResolver(
		nominatim.NewClient(geoClient, nominatim.Settings{
			APIURL:    cfg.geo.nominatimURL,
			UserAgent: cfg.geo.userAgent,
		}),
		census.NewClient(geoClient, census.Settings{
			APIURL: cfg.geo.censusURL,
		}),
	)

	searchSvc := walkability.NewService(walkdb.New(sqlDB), resolver)

	var emailSender email.Sender = email.NewLogSender(logger)
	if len(cfg.email.postmarkToken.SecretValue()) > 0 {
		emailSender = postmark.NewSender(&http.Client{Timeout: time.Second * 30}, postmark.Settings{
			APIURL:        cfg.email.postmarkURL,
			ServerToken:   cfg.email.postmarkToken,
			MessageStream: cfg.email.postmarkStream,
		})
	}

	cookieStore := gsessions.NewCookieStore(cfg.sessionKey.SecretValue())
	cookieStore.Options.HttpOnly = true
	cookieStore.Options.Secure = cfg.http.secureCookie
	cookieStore.Options.SameSite = http.SameSiteLaxMode

	deps := &web.ServerDeps{
		Logger:       logger,
		ViewRenderer: view.NewFSRenderer(assets.TemplateFS),
		AuthService:  authSvc,
		SearchSvc:    searchSvc,
		SessionStore: sessions.NewStore(cookieStore),
		EmailSender:  emailSender,
		EmailFrom:    cfg.email.from,
		DistFS:       http.FS(assets.DistFS),
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(deps, web.ServerConfig{
			CSRFKey:      cfg.csrfKey,
			SecureCookie: cfg.http.secureCookie,
		}),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}
