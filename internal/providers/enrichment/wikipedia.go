package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"agrinix/internal/domain"
)

// WikipediaOptions configures the REST summary provider.
type WikipediaOptions struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// Wikipedia looks up the page summary for a class label.
type Wikipedia struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

type wikiSummary struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

func NewWikipedia(opts WikipediaOptions) *Wikipedia {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org/api/rest_v1"
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "agrinix-worker/1.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Wikipedia{baseURL: baseURL, userAgent: userAgent, client: client}
}

func (w *Wikipedia) Name() string { return SourceWikipedia }

// Fetch tries the class with the crop prefix first ("Potato early blight"),
// then the condition alone ("Early blight").
func (w *Wikipedia) Fetch(ctx context.Context, class string) (*domain.DiseaseInfo, error) {
	var lastErr error = ErrNoContent
	for _, term := range searchTerms(class) {
		summary, err := w.summary(ctx, term)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		extract := strings.TrimSpace(summary.Extract)
		if extract == "" || summary.Type == "disambiguation" {
			continue
		}
		return &domain.DiseaseInfo{
			Description: extract,
			Causes:      SweepCauses(extract),
			Symptoms:    SweepSymptoms(extract),
			Prevention:  SweepPrevention(extract),
			Source:      SourceWikipedia,
		}, nil
	}
	return nil, lastErr
}

func (w *Wikipedia) summary(ctx context.Context, term string) (*wikiSummary, error) {
	endpoint := fmt.Sprintf("%s/page/summary/%s", w.baseURL, url.PathEscape(term))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", w.userAgent)
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoContent
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wikipedia: status %d", resp.StatusCode)
	}
	var out wikiSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("wikipedia: decode response: %w", err)
	}
	return &out, nil
}

func searchTerms(class string) []string {
	full := strings.TrimSpace(strings.ReplaceAll(class, "_", " "))
	if full == "" {
		return nil
	}
	terms := []string{upperFirstWord(full)}
	if _, rest, ok := strings.Cut(full, " "); ok && strings.TrimSpace(rest) != "" {
		terms = append(terms, upperFirstWord(strings.TrimSpace(rest)))
	}
	return terms
}

// upperFirstWord renders sentence case, the form Wikipedia titles use.
func upperFirstWord(s string) string {
	s = strings.ToLower(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
