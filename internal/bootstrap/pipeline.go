package bootstrap

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
	"agrinix/internal/providers/enrichment"
	"agrinix/internal/providers/imagestore"
	"agrinix/internal/providers/inference"
	"agrinix/internal/storage"
	"agrinix/internal/worker"
)

const userAgent = "agrinix-worker/1.0 (+https://agrinix.app)"

// ImageStore picks Cloudinary when credentials are set and the local file
// store otherwise.
func ImageStore(cfg *infra.Config, logger *infra.Logger) (domain.ImageStore, error) {
	if cfg.HasCloudinary() {
		return imagestore.NewCloudinary(imagestore.CloudinaryOptions{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			MaxBytes:  cfg.MaxImageBytes,
			Logger:    logger,
		}), nil
	}
	base, err := publicBaseURL(cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	files, err := storage.NewFileStore(path, base.String())
	if err != nil {
		return nil, err
	}
	ev := logger.Warn().Str("path", path).Str("base_url", base.String())
	if isLoopback(base.Hostname()) {
		ev = ev.Bool("loopback", true)
	}
	ev.Msg("bootstrap: cloudinary not configured, storing images locally")
	return imagestore.NewLocal(files, cfg.MaxImageBytes), nil
}

// publicBaseURL rejects storage URLs the inference API could not fetch.
func publicBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: STORAGE_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("bootstrap: STORAGE_BASE_URL %q must be an absolute http(s) URL when cloudinary is not configured", raw)
	}
	return u, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// OpenRouter builds the chat model client shared by enrichment and the
// question endpoint.
func OpenRouter(cfg *infra.Config, client *http.Client) *enrichment.OpenRouter {
	return enrichment.NewOpenRouter(enrichment.OpenRouterOptions{
		APIKey:     cfg.OpenRouterAPIKey,
		Model:      cfg.OpenRouterModel,
		BaseURL:    cfg.OpenRouterBaseURL,
		HTTPClient: client,
	})
}

// EnrichmentChain orders the AI providers ahead of Wikipedia and the static table.
func EnrichmentChain(cfg *infra.Config, logger *infra.Logger) (*enrichment.Chain, error) {
	client := &http.Client{Timeout: cfg.EnrichmentTimeout + 5*time.Second}
	static, err := enrichment.NewStatic(cfg.DiseaseTablePath)
	if err != nil {
		return nil, err
	}
	providers := []enrichment.Provider{OpenRouter(cfg, client)}
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, enrichment.NewGemini(enrichment.GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: client,
		}))
	}
	providers = append(providers,
		enrichment.NewWikipedia(enrichment.WikipediaOptions{
			BaseURL:    cfg.WikipediaBaseURL,
			UserAgent:  userAgent,
			HTTPClient: client,
		}),
		static,
	)
	return enrichment.NewChain(enrichment.Options{
		Providers: providers,
		Timeout:   cfg.EnrichmentTimeout,
		Logger:    logger,
		OnFallback: func(provider, reason string, err error) {
			logger.Warn().Err(err).Str("provider", provider).Str("reason", reason).Msg("enrichment: falling back")
		},
	}), nil
}

// WorkerPool wires the detection pipeline onto store.
func WorkerPool(cfg *infra.Config, store *Store, logger *infra.Logger) (*worker.Pool, error) {
	images, err := ImageStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	classifier := inference.NewClient(inference.Options{
		APIKey:   cfg.RoboflowAPIKey,
		Endpoint: cfg.RoboflowEndpoint,
		Timeout:  cfg.RoboflowTimeout,
		Logger:   logger,
	})
	if !classifier.HasCredentials() {
		logger.Warn().Msg("bootstrap: ROBOFLOW_PRIVATE_API_KEY missing, jobs will fail until it is set")
	}
	chain, err := EnrichmentChain(cfg, logger)
	if err != nil {
		return nil, err
	}
	return worker.New(worker.Options{
		Jobs:            store.Jobs,
		Records:         store.Records,
		Images:          images,
		Inference:       classifier,
		Enrichment:      chain,
		Concurrency:     cfg.WorkerConcurrency,
		PollInterval:    cfg.WorkerPollInterval,
		Lease:           cfg.WorkerLease,
		MaxAttempts:     cfg.JobMaxAttempts,
		BackoffBase:     cfg.JobBackoffBase,
		BackoffMax:      cfg.JobBackoffMax,
		PersistAttempts: cfg.PersistAttempts,
		Retention:       cfg.JobRetention,
		Logger:          logger,
	})
}
