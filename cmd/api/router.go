package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recychain/recychain/internal/chain"
	"github.com/recychain/recychain/internal/config"
	"github.com/recychain/recychain/internal/events"
	"github.com/recychain/recychain/internal/evidence"
	"github.com/recychain/recychain/internal/handlers"
	"github.com/recychain/recychain/internal/ledger"
	"github.com/recychain/recychain/internal/middleware"
	"github.com/recychain/recychain/internal/models"
	"github.com/recychain/recychain/internal/repo"
)

// app bundles the wired service: the ledger and its collaborators, plus the
// pieces main needs after routing (store and transport for the scheduler,
// publisher for shutdown).
type app struct {
	cfg       config.Config
	db        *sql.DB
	store     ledger.Store
	transport ledger.Transport
	ledger    *ledger.Ledger
	evidence  evidence.Store
	users     *repo.UserRepo
	publisher *events.AMQPPublisher
}

// newApp wires every component from config. It never fails hard on optional
// infrastructure: a missing event broker degrades to no fan-out.
func newApp(database *sql.DB, cfg config.Config) *app {
	a := &app{cfg: cfg, db: database}

	if cfg.DBBackend == "memory" {
		a.store = ledger.NewMemStore()
	} else {
		a.store = repo.NewLedgerStore(database)
	}

	var signer ledger.Signer
	if cfg.SignerMode == "remote" && cfg.WalletURL != "" {
		signer = chain.NewRemoteSigner(cfg.WalletURL, cfg.SignerAddress,
			time.Duration(cfg.WalletTimeoutSeconds)*time.Second)
	} else {
		signer = chain.NewLocalSigner(cfg.SignerAddress, cfg.SignerKey)
	}

	if cfg.ChainGatewayURL != "" {
		a.transport = chain.NewGateway(cfg.ChainGatewayURL)
	} else {
		a.transport = chain.NewLoopback()
	}

	var pub ledger.Publisher
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Warn("event broker unavailable, transitions will not be published", "error", err)
		} else {
			a.publisher = p
			pub = p
		}
	}

	if cfg.EvidenceBackend == "ipfs" {
		a.evidence = evidence.NewIPFSStore(cfg.IPFSAPIURL)
	} else {
		a.evidence = evidence.NewMemStore()
	}

	a.ledger = ledger.New(a.store, signer, a.transport, pub, ledger.Config{
		IdempotencyWindow: time.Duration(cfg.IdempotencyWindowMinutes) * time.Minute,
	})
	a.users = repo.NewUserRepo(database)
	return a
}

// router builds the HTTP surface.
func (a *app) router() http.Handler {
	authH := &handlers.AuthHandler{
		UserRepo: a.users,
		Secret:   []byte(a.cfg.JWTSecret),
		TokenTTL: time.Duration(a.cfg.JWTExpireHours) * time.Hour,
	}
	assetH := &handlers.AssetHandler{Ledger: a.ledger}
	transH := &handlers.TransitionHandler{Ledger: a.ledger}
	evidenceH := &handlers.EvidenceHandler{Store: a.evidence}
	userH := &handlers.UserHandler{Repo: a.users}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecurityHeaders(a.cfg.Env == "prod"))
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(a.cfg.CORSAllowedOrigins))
	}
	r.Use(middleware.Prometheus)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ready", a.ready)
	r.Handle("/metrics", promhttp.Handler())

	authLimiter := middleware.AuthRateLimiter()

	r.Route("/v1", func(r chi.Router) {
		// Public auth endpoints, rate limited per IP.
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Use(middleware.MaxBytes(1 << 20))
			r.Post("/auth/register", authH.Register)
			r.Post("/auth/login", authH.Login)
		})

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware([]byte(a.cfg.JWTSecret)))

			// Reads: any authenticated role.
			r.Get("/assets", assetH.List)
			r.Get("/assets/summary", assetH.Summary)
			r.Get("/assets/{id}", assetH.Get)
			r.Get("/assets/{id}/history", assetH.History)
			r.Get("/transitions", transH.List)
			r.Get("/evidence/{ref}", evidenceH.Fetch)

			// Transfer authorization (current owner or admin) lives in the
			// ledger, so the route only requires authentication.
			r.Post("/assets/{id}/transfer", assetH.Transfer)

			// Registration and user management are admin-only.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/assets", assetH.Register)
				r.Post("/assets/import", assetH.Import)
				r.Get("/users", userH.ListUsers)
				r.Get("/users/{id}", userH.GetUser)
				r.Put("/users/{id}/role", userH.UpdateRole)
				r.Delete("/users/{id}", userH.DeleteUser)
			})

			// Lifecycle transitions are for technicians and admins.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleTechnician, models.RoleAdmin))
				r.Post("/assets/{id}/sanitize", assetH.Sanitize)
				r.Post("/assets/{id}/recycle", assetH.Recycle)
				r.With(middleware.MaxBytes(int64(a.cfg.EvidenceMaxBytes))).
					Post("/evidence", evidenceH.Upload)
			})
		})
	})

	return r
}

// ready reports whether the API can serve traffic. The memory backend is
// always ready; the postgres backend must answer a ping.
func (a *app) ready(w http.ResponseWriter, r *http.Request) {
	if a.cfg.DBBackend != "memory" {
		if err := a.db.PingContext(r.Context()); err != nil {
			slog.Error("readiness ping failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// newRouter wires an app and returns its router.
func newRouter(database *sql.DB, cfg config.Config) http.Handler {
	return newApp(database, cfg).router()
}
