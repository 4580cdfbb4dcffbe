package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/moldovancsaba/cardmass-sub001/pkg/config"
	"github.com/moldovancsaba/cardmass-sub001/pkg/contextkeys"
	"github.com/moldovancsaba/cardmass-sub001/pkg/httputil"
	"github.com/moldovancsaba/cardmass-sub001/pkg/identity"
	"github.com/moldovancsaba/cardmass-sub001/pkg/middleware"
	"github.com/moldovancsaba/cardmass-sub001/pkg/oauth"
	"github.com/moldovancsaba/cardmass-sub001/pkg/observability"
	"github.com/moldovancsaba/cardmass-sub001/pkg/permission"
	"github.com/moldovancsaba/cardmass-sub001/pkg/session"
	"github.com/moldovancsaba/cardmass-sub001/pkg/sso"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Session store: redis when configured, in-memory for local development.
	var store session.Store
	var redisClient *redis.Client
	if cfg.Session.RedisURL != "" {
		redisStore, err := session.NewRedisStore(session.RedisConfig{
			URL: cfg.Session.RedisURL,
			TTL: cfg.Session.TTL,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis session store")
		}
		defer redisStore.Close()
		store = redisStore
		redisClient = redisStore.Client()
		logger.Info("using redis session store")
	} else {
		store = session.NewMemoryStore(cfg.Session.TTL)
		logger.Warn("no redis URL configured, sessions are in-memory and lost on restart")
	}

	// Legacy credential database, only during the migration window.
	var legacyDB *sql.DB
	if cfg.Legacy.PostgresURL != "" {
		legacyDB, err = sql.Open("postgres", cfg.Legacy.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to open legacy database")
		}
		defer legacyDB.Close()
		legacyDB.SetMaxOpenConns(10)
		legacyDB.SetConnMaxIdleTime(5 * time.Minute)
		logger.Info("legacy credential database enabled")
	}

	// Provider discovery is fatal: the flow cannot run without it.
	oauthClient, err := oauth.NewClient(ctx, &oauth.ProviderConfig{
		IssuerURL:    cfg.Provider.IssuerURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		RedirectURL:  cfg.Provider.RedirectURL,
		Scopes:       cfg.Provider.Scopes,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("provider discovery failed")
	}

	codec, err := oauth.NewStateCodec([]byte(cfg.Provider.StateSecret), cfg.Session.VerifierTTL)
	if err != nil {
		logger.WithError(err).Fatal("invalid state secret")
	}

	permResolver, err := permission.NewResolver(permission.ResolverConfig{
		BaseURL:   cfg.Permission.BaseURL,
		AppID:     cfg.Permission.AppID,
		CacheTTL:  cfg.Permission.CacheTTL,
		CacheSize: cfg.Permission.CacheSize,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("invalid permission backend configuration")
	}

	refresher := &instrumentedRefresher{inner: oauthClient, metrics: metrics}
	manager := session.NewManager(store, refresher, session.ManagerConfig{
		RefreshWindow: cfg.Session.RefreshWindow,
	}, logger)

	sources := []identity.Source{identity.NewSSOSource(manager)}
	if legacyDB != nil {
		sources = append(sources, identity.NewLegacySource(identity.NewLegacyStore(legacyDB)))
	}
	resolver := identity.NewResolver(logger, sources...)

	cookies := sso.CookieConfig{
		SessionName:  cfg.Session.CookieName,
		SessionTTL:   cfg.Session.TTL,
		VerifierName: cfg.Session.VerifierCookie,
		VerifierTTL:  cfg.Session.VerifierTTL,
		Legacy:       cfg.Legacy.CookieName,
		Secure:       strings.HasPrefix(cfg.Server.PublicURL, "https://"),
	}
	handlers := sso.NewHandlers(
		oauthClient,
		oauthClient.Verifier(),
		codec,
		&instrumentedPermissions{inner: permResolver, metrics: metrics},
		manager,
		resolver,
		metrics,
		sso.Config{Cookies: cookies},
		logger,
	)

	router := buildRouter(cfg, handlers, resolver, cookies, metrics, logger)

	var appHandler http.Handler = router
	if cfg.Observability.OTelEnabled {
		appHandler = otelhttp.NewHandler(router, "authd")
	}

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      appHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(legacyDB, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: httputil.Chain(httputil.RecoveryMiddleware(logger), httputil.RequestIDMiddleware)(healthMux),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("auth server listening")
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := appServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("auth server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown failed")
		}
		return observability.ShutdownTracing(shutdownCtx, tracerProvider, logger)
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("stopped")
}

// buildRouter assembles the request pipeline: recovery first, then request
// IDs, access logging and metrics, then the flow and the org-scoped surface.
func buildRouter(
	cfg *config.Config,
	handlers *sso.Handlers,
	resolver *identity.Resolver,
	cookies sso.CookieConfig,
	metrics *observability.Metrics,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics, routeTemplate))
	}

	limiter := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
	handlers.RegisterRoutes(router, limiter.Middleware)

	// Org-scoped surface: tenant consistency is enforced before identity is
	// even consulted.
	cookieNames := middleware.CookieNames{SSOSession: cookies.SessionName, Legacy: cookies.Legacy}
	orgs := router.PathPrefix("/organizations/{orgID}").Subrouter()
	orgs.Use(middleware.OrgScope(func(code string) {
		metrics.OrgScopeRejectionsTotal.WithLabelValues(code).Inc()
	}))
	orgs.Use(middleware.ResolveUser(resolver, cookieNames))
	orgs.Handle("/auth/check", middleware.RequireUser(http.HandlerFunc(orgAuthCheck))).Methods(http.MethodGet)

	return router
}

// orgAuthCheck returns the resolved identity within a validated tenant
// scope, for frontends that need both in one round trip.
func orgAuthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"authenticated":   true,
		"user":            middleware.GetUser(r),
		"organization_id": contextkeys.GetOrgID(r.Context()),
	})
}

// routeTemplate resolves the matched route's path template so metric labels
// stay low-cardinality.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return template
}

// instrumentedPermissions counts permission backend calls by outcome.
type instrumentedPermissions struct {
	inner   sso.PermissionAPI
	metrics *observability.Metrics
}

func (p *instrumentedPermissions) Get(ctx context.Context, subjectID, accessToken string) (*permission.AppPermission, error) {
	perm, err := p.inner.Get(ctx, subjectID, accessToken)
	p.count("get", err)
	return perm, err
}

func (p *instrumentedPermissions) Request(ctx context.Context, subjectID, accessToken string) (*permission.AppPermission, error) {
	perm, err := p.inner.Request(ctx, subjectID, accessToken)
	p.count("request", err)
	return perm, err
}

func (p *instrumentedPermissions) count(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.PermissionLookupsTotal.WithLabelValues(op + "_" + status).Inc()
}

// instrumentedRefresher counts refresh grant attempts by outcome.
type instrumentedRefresher struct {
	inner   session.TokenRefresher
	metrics *observability.Metrics
}

func (t *instrumentedRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth.Tokens, error) {
	tokens, err := t.inner.Refresh(ctx, refreshToken)
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.TokenRefreshesTotal.WithLabelValues(status).Inc()
	return tokens, err
}
