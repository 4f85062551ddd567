package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/ffmpeg"
)

// maxWorkspaceBytes bounds the editor state blob a client may store.
const maxWorkspaceBytes = 1 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/clips", importClipHandler(cfg))
		r.Get("/clips", listClipsHandler(cfg))
		r.Get("/clips/{id}", getClipHandler(cfg))
		r.Delete("/clips/{id}", deleteClipHandler(cfg))
		r.Post("/clips/{id}/trim", trimClipHandler(cfg))
		r.Post("/clips/{id}/audio", extractAudioHandler(cfg))

		r.Post("/thumbnails/regenerate", regenerateThumbnailsHandler(cfg))
		r.Post("/probe", probeHandler(cfg))
		r.Post("/recordings", saveRecordingHandler(cfg))

		r.Get("/workspace", getWorkspaceHandler(cfg))
		r.Put("/workspace", putWorkspaceHandler(cfg))
		r.Post("/workspace/reset", resetWorkspaceHandler(cfg))

		r.Get("/playback/{id}", playbackHandler(cfg))
		r.Get("/playback/{id}/thumbnail", thumbnailHandler(cfg))

		r.Post("/exports", createExportHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Delete("/jobs/{id}", cancelJobHandler(cfg))
		r.Get("/jobs/{id}/events", jobEventsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  "0.1.0",
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clipsCount, _ := cfg.CatalogService.CountClips(ctx)
		queued, _ := cfg.Repository.CountJobsByStatus(ctx, catalog.JobStatusPending)

		state := "idle"
		var activeJob *JobResponse
		if id := cfg.Manager.ActiveJobID(); id != "" {
			state = "exporting"
			if job, err := cfg.Repository.GetJob(ctx, id); err == nil && job != nil {
				resp := JobToResponse(job)
				activeJob = &resp
			}
		}

		lastError := ""
		if jobs, err := cfg.Repository.ListJobs(ctx, 10); err == nil {
			for _, j := range jobs {
				if j.Status == catalog.JobStatusFailed {
					lastError = j.Error
					break
				}
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:      state,
			LastError:  lastError,
			ClipsCount: clipsCount,
			JobsQueued: queued,
			ActiveJob:  activeJob,
			Tools:      CapabilitiesToResponse(cfg.Doctor.Peek()),
		})
	}
}

func importClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		clip, err := cfg.CatalogService.ImportFile(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusCreated, ClipToResponse(clip))
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.CatalogService.ListClips(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list clips", "INTERNAL_ERROR")
			return
		}

		resp := ClipsResponse{Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.CatalogService.GetClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if clip == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ClipToResponse(clip))
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cfg.CatalogService.RemoveClip(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, catalog.ErrClipNotFound) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func trimClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		clip, err := cfg.CatalogService.TrimClip(r.Context(), chi.URLParam(r, "id"), req.Start, req.End)
		if err != nil {
			writeClipOpError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ClipToResponse(clip))
	}
}

func extractAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cfg.CatalogService.ExtractAudio(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeClipOpError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, AudioResponse{Path: path})
	}
}

// writeClipOpError maps a clip operation failure to a response: unknown
// clips are 404, transcoder failures are 502, everything else is caller
// input and gets 400.
func writeClipOpError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrClipNotFound) {
		WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
		return
	}
	var execErr *ffmpeg.ExecError
	var spawnErr *ffmpeg.SpawnError
	var outErr *ffmpeg.OutputError
	if errors.As(err, &execErr) || errors.As(err, &spawnErr) || errors.As(err, &outErr) {
		WriteError(w, http.StatusBadGateway, err.Error(), "FFMPEG_FAILED")
		return
	}
	WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
}

func regenerateThumbnailsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := cfg.CatalogService.RegenerateThumbnails(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, RegenerateResponse{Count: count})
	}
}

func probeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProbeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		meta, err := cfg.CatalogService.Probe(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "PROBE_FAILED")
			return
		}
		WriteJSON(w, http.StatusOK, MetadataToResponse(meta))
	}
}

func saveRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		convert := true
		if raw := r.URL.Query().Get("convert"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "convert must be a boolean", "BAD_REQUEST")
				return
			}
			convert = parsed
		}

		clip, path, err := cfg.CatalogService.SaveRecording(r.Context(), name, r.Body, convert)
		if err != nil {
			var execErr *ffmpeg.ExecError
			if errors.As(err, &execErr) {
				WriteError(w, http.StatusBadGateway, err.Error(), "FFMPEG_FAILED")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		resp := RecordingResponse{Path: path}
		if clip != nil {
			c := ClipToResponse(clip)
			resp.Clip = &c
			resp.Path = clip.Path
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func getWorkspaceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blob, err := cfg.CatalogService.Workspace(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if blob == "" {
			blob = "{}"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, blob)
	}
}

func putWorkspaceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWorkspaceBytes+1))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "failed to read body", "BAD_REQUEST")
			return
		}
		if len(body) > maxWorkspaceBytes {
			WriteError(w, http.StatusRequestEntityTooLarge, "workspace blob too large", "TOO_LARGE")
			return
		}
		if !json.Valid(body) {
			WriteError(w, http.StatusBadRequest, "workspace blob must be valid JSON", "BAD_REQUEST")
			return
		}

		if err := cfg.CatalogService.SaveWorkspace(r.Context(), string(body)); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetWorkspaceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.CatalogService.ResetWorkspace(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.CatalogService.GetClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if clip == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, clip.Path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "clip_id", clip.ID)
		}
	}
}

func thumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.CatalogService.GetClip(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if clip == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		if clip.ThumbnailPath == "" {
			WriteError(w, http.StatusNotFound, "clip has no thumbnail", "NOT_FOUND")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, clip.ThumbnailPath); err != nil {
			cfg.Logger.Error("thumbnail error", "error", err, "clip_id", clip.ID)
		}
	}
}
