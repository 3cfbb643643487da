package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agrinix/internal/domain"
	"agrinix/internal/middleware"
	"agrinix/internal/queue"
)

const (
	cropImageField   = "crop-image"
	multipartMemory  = 1 << 20
	multipartOverrun = 1 << 20
)

type detectResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
}

type jobListResponse struct {
	Jobs []queue.Status `json:"jobs"`
}

// DetectDisease accepts a crop photo and enqueues a detection job.
func (a *App) DetectDisease(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	maxBytes := a.maxImageBytes()
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes+multipartOverrun))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("image exceeds %d bytes", maxBytes))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form with a crop-image file is required")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(cropImageField)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "crop-image file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read crop-image")
		return
	}

	jobID, err := a.Queue.Submit(r.Context(), queue.SubmitRequest{
		OwnerID:  ownerID,
		Image:    data,
		MimeType: header.Header.Get("Content-Type"),
		Filename: header.Filename,
		Region:   middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.submitError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, detectResponse{
		Message: "Image received, disease detection started",
		JobID:   jobID,
		Status:  "processing",
	})
}

func (a *App) submitError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "owner not found")
	default:
		a.Logger.Error().Err(err).Msg("detect: failed to enqueue job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
	}
}

// JobStatus answers GET /crops/job-status?jobId=.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w, r, r.URL.Query().Get("jobId"))
}

// JobByID answers GET /crops/jobs/{id}.
func (a *App) JobByID(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w, r, chi.URLParam(r, "id"))
}

func (a *App) writeStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}
	status, err := a.Tracker.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("status: lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if status.OwnerID != ownerID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, status)
}

// MyJobs lists the caller's jobs, newest first.
func (a *App) MyJobs(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	jobs, err := a.Tracker.ListJobs(r.Context(), ownerID)
	if err != nil {
		a.Logger.Error().Err(err).Str("owner_id", ownerID).Msg("status: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	a.json(w, http.StatusOK, jobListResponse{Jobs: jobs})
}
