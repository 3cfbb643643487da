package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"agrinix/internal/http/handlers"
	"agrinix/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(app.Logger))
	if app.Config != nil && len(app.Config.CORSOrigins) > 0 {
		r.Use(middleware.CORS(app.Config.CORSOrigins))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	// Images written by the local image store.
	if app.Config != nil && strings.TrimSpace(app.Config.StoragePath) != "" {
		files := http.FileServer(http.Dir(app.Config.StoragePath))
		r.Handle("/static/*", http.StripPrefix("/static/", files))
	}

	secret, limit := "", 30
	if app.Config != nil {
		secret = app.Config.JWTSecret
		if app.Config.RateLimitPerMin > 0 {
			limit = app.Config.RateLimitPerMin
		}
	}
	r.Route("/crops", func(r chi.Router) {
		r.Use(middleware.AuthJWT(secret), middleware.Region(app.GeoIP))
		r.With(middleware.RateLimit(limit, time.Minute)).Post("/detect-disease", app.DetectDisease)
		r.Get("/job-status", app.JobStatus)
		r.Get("/jobs/{id}", app.JobByID)
		r.Get("/my-jobs", app.MyJobs)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limit, time.Minute))
			r.Post("/ai/disease-info", app.DiseaseInfo)
			r.Post("/ai/ask", app.Ask)
		})
	})

	return r
}
