// Package enrichment produces human-readable disease information for a class
// label by walking an ordered list of providers.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agrinix/internal/domain"
	"agrinix/internal/infra"
)

// Provider names recorded in DiseaseInfo.Source.
const (
	SourceOpenRouter = "openrouter"
	SourceGemini     = "gemini"
	SourceWikipedia  = "wikipedia"
	SourceStatic     = "static"
	SourceDefault    = "default"
)

// ErrNoContent is returned by providers that answered without usable information.
var ErrNoContent = errors.New("enrichment: no usable content")

// Provider fetches disease information for a raw class label.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, class string) (*domain.DiseaseInfo, error)
}

// Options configures a Chain.
type Options struct {
	Providers  []Provider
	Timeout    time.Duration
	Logger     *infra.Logger
	OnFallback func(provider, reason string, err error)
}

// Chain tries providers in order; the first usable answer wins.
type Chain struct {
	providers  []Provider
	timeout    time.Duration
	logger     *infra.Logger
	onFallback func(provider, reason string, err error)
}

// NewChain builds a chain. When no provider can answer, Enrich still returns
// a generic template.
func NewChain(opts Options) *Chain {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	providers := make([]Provider, 0, len(opts.Providers))
	for _, p := range opts.Providers {
		if p != nil {
			providers = append(providers, p)
		}
	}
	return &Chain{
		providers:  providers,
		timeout:    timeout,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		onFallback: opts.OnFallback,
	}
}

// Enrich always returns a DiseaseInfo whose four lists are non-empty.
func (c *Chain) Enrich(ctx context.Context, class string) domain.DiseaseInfo {
	class = strings.TrimSpace(class)
	info, ok := firstValid(ctx, c.providers, class, c.timeout, c.fallback)
	if !ok {
		info = GenericInfo(class)
	}
	return Complete(info, class)
}

func (c *Chain) fallback(provider, reason string, err error) {
	c.logger.Warn().Err(err).Str("provider", provider).Str("reason", reason).Msg("enrichment provider skipped")
	if c.onFallback != nil {
		c.onFallback(provider, reason, err)
	}
}

// firstValid runs providers in order, each under its own deadline, and returns
// the first non-empty answer.
func firstValid(ctx context.Context, providers []Provider, class string, timeout time.Duration, skip func(provider, reason string, err error)) (domain.DiseaseInfo, bool) {
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			skip(p.Name(), "cancelled", err)
			return domain.DiseaseInfo{}, false
		}
		info, err := fetchWithTimeout(ctx, p, class, timeout)
		switch {
		case err != nil:
			skip(p.Name(), reasonFor(err), err)
		case info == nil || info.Empty():
			skip(p.Name(), "empty", ErrNoContent)
		default:
			out := info.Clone()
			if out.Source == "" {
				out.Source = p.Name()
			}
			return out, true
		}
	}
	return domain.DiseaseInfo{}, false
}

func fetchWithTimeout(ctx context.Context, p Provider, class string, timeout time.Duration) (info *domain.DiseaseInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()
	return p.Fetch(ctx, class)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, ErrNoContent):
		return "empty"
	default:
		return "error"
	}
}
