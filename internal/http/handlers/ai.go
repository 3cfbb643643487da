package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"agrinix/internal/domain"
	"agrinix/internal/providers/enrichment"
)

const (
	aiBodyLimit       = 16 << 10
	maxQuestionLength = 2000
)

// DiseaseInfoSource resolves a class label to disease information. It never fails.
type DiseaseInfoSource interface {
	Enrich(ctx context.Context, class string) domain.DiseaseInfo
}

// Advisor answers free-form plant health questions.
type Advisor interface {
	Ask(ctx context.Context, question, class string) (string, error)
}

type diseaseInfoRequest struct {
	DiseaseClass string `json:"diseaseClass"`
}

type diseaseInfoResponse struct {
	DiseaseClass string             `json:"diseaseClass"`
	DiseaseInfo  domain.DiseaseInfo `json:"diseaseInfo"`
}

type askRequest struct {
	Question     string `json:"question"`
	DiseaseClass string `json:"diseaseClass,omitempty"`
}

type askResponse struct {
	Question     string `json:"question"`
	DiseaseClass string `json:"diseaseClass,omitempty"`
	Answer       string `json:"answer"`
}

// DiseaseInfo answers POST /crops/ai/disease-info through the enrichment chain.
func (a *App) DiseaseInfo(w http.ResponseWriter, r *http.Request) {
	if a.Diseases == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "disease information is not configured")
		return
	}
	var req diseaseInfoRequest
	if !a.decodeAI(w, r, &req) {
		return
	}
	class := strings.TrimSpace(req.DiseaseClass)
	if class == "" {
		a.error(w, http.StatusBadRequest, "validation_failed", "diseaseClass is required")
		return
	}
	a.json(w, http.StatusOK, diseaseInfoResponse{
		DiseaseClass: class,
		DiseaseInfo:  a.Diseases.Enrich(r.Context(), class),
	})
}

// Ask answers POST /crops/ai/ask with a chat model reply.
func (a *App) Ask(w http.ResponseWriter, r *http.Request) {
	if a.Advisor == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "assistant is not configured")
		return
	}
	var req askRequest
	if !a.decodeAI(w, r, &req) {
		return
	}
	question := strings.TrimSpace(req.Question)
	switch {
	case question == "":
		a.error(w, http.StatusBadRequest, "validation_failed", "question is required")
		return
	case utf8.RuneCountInString(question) > maxQuestionLength:
		a.error(w, http.StatusBadRequest, "validation_failed", "question is too long")
		return
	}
	class := strings.TrimSpace(req.DiseaseClass)

	answer, err := a.Advisor.Ask(r.Context(), question, class)
	if err != nil {
		if errors.Is(err, enrichment.ErrMissingAPIKey) {
			a.error(w, http.StatusServiceUnavailable, "unavailable", "assistant is not configured")
			return
		}
		a.Logger.Warn().Err(err).Str("owner_id", a.currentOwnerID(r)).Msg("ask: assistant failed")
		a.error(w, http.StatusBadGateway, "upstream", "assistant did not answer")
		return
	}
	a.json(w, http.StatusOK, askResponse{Question: question, DiseaseClass: class, Answer: answer})
}

func (a *App) decodeAI(w http.ResponseWriter, r *http.Request, v any) bool {
	if a.currentOwnerID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, aiBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "request body is too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "JSON body is required")
		return false
	}
	return true
}
