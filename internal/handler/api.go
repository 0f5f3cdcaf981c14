package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/codeagentswarm/swarm-backend/internal/auth"
	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/internal/changelog"
	"github.com/codeagentswarm/swarm-backend/internal/config"
	"github.com/codeagentswarm/swarm-backend/internal/logger"
	"github.com/codeagentswarm/swarm-backend/internal/report"
	"github.com/codeagentswarm/swarm-backend/internal/store"
	"github.com/codeagentswarm/swarm-backend/internal/update"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// API handles HTTP requests
type API struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       *store.SQLiteStore
	blobs       *blob.FileStore
	resolver    *update.Resolver
	changelogs  *changelog.Service
	reports     *report.Service
	auth        *auth.Service
	rateLimiter *RateLimiter
	now         func() time.Time
}

// NewAPI creates a new API instance on top of an opened store and blob store
func NewAPI(cfg *config.Config, logger *zap.Logger, st *store.SQLiteStore, blobs *blob.FileStore) *API {
	return &API{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		blobs:      blobs,
		resolver:   update.NewResolver(st, logger),
		changelogs: changelog.NewService(st),
		reports: report.NewService(st, blobs, report.Buckets{
			Logs:    cfg.Blob.LogBucket,
			Crashes: cfg.Blob.CrashBucket,
		}, logger),
		auth:        auth.NewService(cfg.Auth, cfg.Server.BaseURL, st, logger),
		rateLimiter: NewRateLimiter(float64(cfg.RateLimit.UploadRPS), cfg.RateLimit.UploadBurst),
		now:         time.Now,
	}
}

// Close releases the resources owned by the API
func (a *API) Close() {
	a.rateLimiter.Close()
}

// RegisterRoutes registers the API routes
func (a *API) RegisterRoutes(r chi.Router) {
	r.Use(RememberPeer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(Cors(a.cfg.CORS.AllowedOrigins))

	r.Get("/health", a.health)

	r.Route("/update", func(r chi.Router) {
		r.Post("/check", a.checkUpdateBody)
		r.Get("/feed/{platform}/{arch}/{file}", a.updateFeed)
		r.Get("/{platform}/{version}", a.checkUpdate)
		r.Get("/{platform}/{version}/manifest.yml", a.updateManifest)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/logs", func(r chi.Router) {
			r.With(a.rateLimiter.RateLimit).Post("/submit", a.submitLog)
			r.Get("/ticket/{ticketId}", a.getLogTicket)
		})
		r.With(a.rateLimiter.RateLimit).Post("/crash-reports", a.submitCrashReport)

		r.Route("/errors", func(r chi.Router) {
			r.With(
				AppSignature(a.cfg.Reports.AppSecret, a.cfg.Reports.SignatureMaxAge, a.cfg.Reports.MaxUploadBytes, a.now),
				a.errorQuota,
			).Post("/report", a.submitErrorReport)
			r.Get("/health", a.errorsHealth)
		})

		r.Route("/changelog", func(r chi.Router) {
			r.Get("/", a.listChangelogs)
			r.Get("/version/{version}", a.getChangelog)
			r.Get("/between/{from}/{to}", a.changelogsBetween)
			r.Get("/combined/{from}/{to}", a.combinedChangelog)
			r.With(LocalOnly).Post("/", a.saveChangelog)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login/{provider}", a.login)
			r.Get("/callback/{provider}", a.callback)
			r.Post("/validate", a.validate)
			r.Post("/refresh", a.refresh)
			r.Post("/logout", a.logout)
		})
	})

	// Public release artifacts
	bucket := a.cfg.Blob.ReleaseBucket
	prefix := "/downloads/" + bucket + "/"
	fileServer := http.FileServer(http.Dir(a.blobs.Dir(bucket)))
	r.Handle(prefix+"*", a.rateLimiter.RateLimit(SecureFileServer(http.StripPrefix(prefix, fileServer))))

	// Private objects behind signed links
	r.Get("/blobs/{bucket}/*", a.signedBlob)

	// Admin routes (localhost only)
	r.Route("/admin", func(r chi.Router) {
		r.Use(LocalOnly)
		r.Get("/tickets/{ticketId}/bundle.zip", a.ticketBundle)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Error("database ping failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"service":   a.cfg.Server.Name,
		"version":   a.cfg.Server.Version,
		"timestamp": a.now().UTC().Format(update.ReleaseDateLayout),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers with a generic 500
func (a *API) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.Error(msg,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
