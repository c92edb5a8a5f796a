package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/selfheal/internal/core"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs          *service.JobService
	SourceControl core.SourceControl
	Defaults      HealDefaults
	// Optional: when set, every /api/ route requires a verified bearer token.
	Verifier core.TokenVerifier
	Logger   *slog.Logger // Logger for handler errors (optional)
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	api := http.NewServeMux()
	registerHealRoutes(api, &HealHandlers{Svc: services.Jobs, Defaults: services.Defaults, Logger: services.Logger})
	registerRunRoutes(api, &RunHandlers{SourceControl: services.SourceControl, Defaults: services.Defaults})
	api.HandleFunc("/api/", notFound)

	mux := http.NewServeMux()
	mux.Handle("/api/", RequireBearer(services.Verifier, services.Logger)(api))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.HandleFunc("/", notFound)
	return mux
}

func registerHealRoutes(mux *http.ServeMux, h *HealHandlers) {
	mux.HandleFunc("POST /api/heal/start", h.Start)
	mux.HandleFunc("GET /api/heal/status", h.Status)
	mux.HandleFunc("GET /api/heal/debug", h.Debug)
	mux.HandleFunc("POST /api/heal/logs/clear", h.ClearLogs)
}

func registerRunRoutes(mux *http.ServeMux, h *RunHandlers) {
	mux.HandleFunc("GET /api/runs", h.List)
	mux.HandleFunc("GET /api/run", h.Get)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeServiceError(w, apperrors.NotFound("Not found"), "")
}
