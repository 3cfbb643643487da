package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"agrinix/internal/infra"
	"agrinix/internal/infra/geoip"
	"agrinix/internal/middleware"
	"agrinix/internal/queue"
)

// Pinger reports whether the job store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App carries the dependencies shared by HTTP handlers.
type App struct {
	Config  *infra.Config
	Logger  infra.Logger
	Queue   *queue.Queue
	Tracker *queue.Tracker
	Store   Pinger
	GeoIP   geoip.CountryResolver

	Diseases DiseaseInfoSource
	Advisor  Advisor
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

func (a *App) currentOwnerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}

func (a *App) maxImageBytes() int {
	if a.Config != nil && a.Config.MaxImageBytes > 0 {
		return a.Config.MaxImageBytes
	}
	return queue.DefaultMaxImageBytes
}
