package cmd

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/api"
	"hatch-backend/internal/auth"
	"hatch-backend/internal/chat"
	"hatch-backend/internal/config"
	"hatch-backend/internal/insurance"
	"hatch-backend/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// ConfigureLogging sends slog output to w at the given level.
func ConfigureLogging(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func LoadModelRegistry(path string) *ai.Registry {
	if path == "" {
		return ai.DefaultRegistry()
	}

	registry, err := ai.LoadRegistry(path)
	if err != nil {
		log.Fatalf("Failed to load model registry: %v", err)
	}
	slog.Info("loaded model registry", "path", path, "models", len(registry.Models()), "default", registry.DefaultModelId())
	return registry
}

func SeedInsuranceCatalog(db *gorm.DB, path string) {
	catalog, err := insurance.LoadCatalog(path)
	if err != nil {
		log.Fatalf("Failed to load insurance catalog: %v", err)
	}

	if err := insurance.SeedCatalog(context.Background(), db, catalog); err != nil {
		log.Fatalf("Failed to seed insurance catalog: %v", err)
	}
}

// CreateServer wires every service onto a router serving the api under /api.
func CreateServer(db *gorm.DB, cfg config.Config, registry *ai.Registry) *http.Server {
	provider := ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	titler, err := ai.NewOpenAITitler(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TitleModel)
	if err != nil {
		log.Fatalf("Failed to create title generator: %v", err)
	}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	orchestrator := chat.NewOrchestrator(db, registry, provider, titler)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{chat.DataStreamHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(auth.Middleware(issuer))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// The chat service applies the request timeout itself, streamed
		// responses keep only their own deadline.
		api.NewChatService(db, orchestrator, cfg.RequestTimeout).AddRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			api.NewBackendService(db, registry).AddRoutes(r)
			api.NewAuthService(db, issuer).AddRoutes(r)
			api.NewInsuranceService(db).AddRoutes(r)
		})
	})

	return &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}
}
