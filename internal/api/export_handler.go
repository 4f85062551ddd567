package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/export"
)

func createExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if !cfg.Doctor.Peek().Ready() {
			WriteError(w, http.StatusServiceUnavailable, "ffmpeg is not available", "FFMPEG_UNAVAILABLE")
			return
		}

		clips := make([]export.ClipSpec, 0, len(req.Clips))
		for i, c := range req.Clips {
			path := c.Path
			if c.ClipID != "" {
				clip, err := cfg.CatalogService.GetClip(r.Context(), c.ClipID)
				if err != nil {
					WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
					return
				}
				if clip == nil {
					WriteError(w, http.StatusBadRequest,
						fmt.Sprintf("clip %d/%d: unknown clip id %s", i+1, len(req.Clips), c.ClipID), "BAD_REQUEST")
					return
				}
				path = clip.Path
			}
			clips = append(clips, export.ClipSpec{
				Path:   path,
				Start:  c.Start,
				End:    c.End,
				Volume: c.Volume,
				Muted:  c.Muted,
			})
		}

		job, err := cfg.Manager.Submit(r.Context(), export.Request{
			Clips:      clips,
			Resolution: req.Resolution,
			OutputPath: req.OutputPath,
		})
		if err != nil {
			var invalid *export.InvalidRequestError
			switch {
			case errors.As(err, &invalid):
				WriteError(w, http.StatusBadRequest, invalid.Error(), "BAD_REQUEST")
			case errors.Is(err, export.ErrQueueFull):
				WriteError(w, http.StatusServiceUnavailable, err.Error(), "QUEUE_FULL")
			default:
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			}
			return
		}

		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Repository.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cfg.Manager.Cancel(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, export.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		case errors.Is(err, export.ErrJobFinished):
			WriteError(w, http.StatusConflict, "job already finished", "CONFLICT")
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
