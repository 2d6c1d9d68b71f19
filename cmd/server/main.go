// Command server runs the notesmith HTTP server: the notes API, auth,
// AI assist, exports and the MCP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/notesmith/internal/ai"
	"github.com/kuitang/notesmith/internal/api"
	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/config"
	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/email"
	"github.com/kuitang/notesmith/internal/export"
	"github.com/kuitang/notesmith/internal/mcp"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/ratelimit"
	"github.com/kuitang/notesmith/internal/s3client"
)

const (
	sessionCleanupInterval = time.Hour
	shutdownTimeout        = 10 * time.Second
)

func main() {
	obs.Init()
	if err := run(context.Background(), os.Args[1:]); err != nil {
		obs.Pkg("main").Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags, err := config.ParseFlags("server", args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}
	if lvl, err := obs.ParseLevel(cfg.LogLevel); err == nil {
		obs.SetLevel(lvl)
	}
	cfg.PrintStartupSummary(os.Stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// AI calls can take up to the provider timeout.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger := obs.Pkg("main")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// App is the wired server. Close releases everything newApp opened.
type App struct {
	Handler http.Handler
	closers []func()
}

// Close runs the cleanup functions in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	key, err := db.ParseKey(cfg.DatabaseKey)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(ctx, db.Options{Path: cfg.DatabasePath, Key: key})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = store.Close() })

	var emailSvc email.EmailService
	switch {
	case cfg.NoEmail && cfg.MockEmailOutboxDir != "":
		emailSvc, err = email.NewMockEmailOutbox(cfg.MockEmailOutboxDir)
		if err != nil {
			return nil, err
		}
	case cfg.NoEmail:
		emailSvc = email.NewMockEmailService()
	default:
		emailSvc = email.NewResendEmailService(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}

	var provider ai.Provider = ai.OfflineProvider{}
	if !cfg.NoAI {
		provider, err = ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
	}

	var objects *s3client.Client
	if cfg.NoS3 {
		var stopFake func()
		objects, stopFake, err = s3client.NewFake(ctx, cfg.AWSBucketName)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, stopFake)
	} else {
		objects, err = s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
		})
		if err != nil {
			return nil, err
		}
	}

	users := auth.NewUserService(store, emailSvc, cfg.BaseURL)
	sessions := auth.NewSessionService(store, cfg.SessionDuration)
	middleware := auth.NewMiddleware(sessions)

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	app.closers = append(app.closers, stopCleanup)
	go sessions.RunCleanup(cleanupCtx, sessionCleanupInterval)

	noteSvc := notes.NewService(store, notes.Options{EnforceOwnership: cfg.EnforceNoteOwnership})
	assistant := ai.NewAssistant(provider)
	exports := export.NewService(noteSvc, objects, nil)

	apiLimiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	aiLimiter := ratelimit.NewRateLimiter(cfg.AIRateLimitConfig)
	authLimiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	app.closers = append(app.closers, apiLimiter.Stop, aiLimiter.Stop, authLimiter.Stop)

	byUser := func(r *http.Request) string { return auth.GetUserID(r.Context()) }
	limitAPI := ratelimit.Middleware(apiLimiter, byUser)
	protect := func(next http.Handler) http.Handler {
		return middleware.RequireAuth(limitAPI(next))
	}

	mux := http.NewServeMux()
	api.NewHandler(api.Deps{
		Notes:     noteSvc,
		Assistant: assistant,
		Exports:   exports,
		Ping:      store.Ping,
	}).RegisterRoutes(mux, protect, ratelimit.Middleware(aiLimiter, byUser))

	authMux := http.NewServeMux()
	auth.NewHandler(users, sessions, middleware).RegisterRoutes(authMux)
	mux.Handle("/auth/", ratelimit.Middleware(authLimiter, ratelimit.ClientIP)(authMux))

	mcpServer := mcp.NewServer(noteSvc, assistant)
	mountMCPRoute(mux, "/mcp", mcp.RequireAuth(middleware)(limitAPI(mcpServer)))

	app.Handler = obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux))
	return app, nil
}

// mountMCPRoute registers handler for every method of the streamable HTTP
// transport, so CORS preflight reaches it too.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}
