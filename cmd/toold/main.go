package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coding-eval-platform/lti13demo/internal/admin"
	"github.com/coding-eval-platform/lti13demo/internal/config"
	"github.com/coding-eval-platform/lti13demo/internal/db"
	"github.com/coding-eval-platform/lti13demo/internal/keys"
	"github.com/coding-eval-platform/lti13demo/internal/launch"
	"github.com/coding-eval-platform/lti13demo/internal/login"
	"github.com/coding-eval-platform/lti13demo/internal/nonce"
	"github.com/coding-eval-platform/lti13demo/internal/seed"
	"github.com/coding-eval-platform/lti13demo/internal/state"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	trustStore := &trust.SQLStore{DB: dbh}
	keyStore := &keys.SQLStore{DB: dbh}
	nonces := &nonce.SQLRegistry{DB: dbh, TTL: cfg.NonceTTL}

	if cfg.SeedDemoData {
		err := seed.Preload(ctx, trustStore, keyStore, seed.OwnKey{
			KID:        cfg.ToolKeyID,
			PublicPEM:  cfg.ToolPublicKey,
			PrivatePEM: cfg.ToolPrivateKey,
		})
		if err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	signer := &state.Signer{
		Keys:    keyStore,
		ToolKID: cfg.ToolKeyID,
		TTL:     cfg.StateTTL,
	}
	svc := &login.Service{
		Trust:  trustStore,
		Nonces: nonces,
		States: signer,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// OIDC third-party login initiation; platforms send GET or form POST.
	r.Get("/oidc/login_initiations", login.Handler(svc))
	r.Post("/oidc/login_initiations", login.Handler(svc))

	// Callback target: the platform posts id_token + state back here.
	r.Post("/lti/launch", launch.Handler(signer, nonces))

	// Registration API.
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.BasicAuth(cfg.AdminUser, cfg.AdminPassHash))
		r.Mount("/", admin.Routes(trustStore, keyStore))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("toold listening on %s", cfg.HTTPAddr)
	log.Fatal(s.ListenAndServe())
}
