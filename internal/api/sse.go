package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/catalog"
)

const sseHeartbeat = 15 * time.Second

// jobEventsHandler streams a job's progress over SSE: `progress` events
// carrying the bare percentage, then exactly one terminal `done` or
// `error` event. The subscriber channel closing is the terminal signal;
// the final state is read back from the store so a dropped progress value
// can never swallow the ending.
func jobEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		writeSSE(w, "progress", strconv.Itoa(job.Progress))
		flusher.Flush()
		if job.Terminal() {
			writeTerminalSSE(w, job)
			flusher.Flush()
			return
		}

		ch := cfg.Manager.Subscribe(id)
		defer cfg.Manager.Unsubscribe(id, ch)

		// The job may have finished between the first read and the
		// subscription; nobody would close this channel then.
		job, err = cfg.Repository.GetJob(r.Context(), id)
		if err == nil && job != nil && job.Terminal() {
			writeTerminalSSE(w, job)
			flusher.Flush()
			return
		}

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case p, open := <-ch:
				if !open {
					final, err := cfg.Repository.GetJob(r.Context(), id)
					if err == nil && final != nil {
						writeTerminalSSE(w, final)
						flusher.Flush()
					}
					return
				}
				writeSSE(w, "progress", strconv.Itoa(p))
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeTerminalSSE(w io.Writer, job *catalog.Job) {
	switch job.Status {
	case catalog.JobStatusCompleted:
		writeSSE(w, "done", job.OutputPath)
	case catalog.JobStatusCanceled:
		msg := job.Error
		if msg == "" {
			msg = "export canceled"
		}
		writeSSE(w, "error", msg)
	default:
		msg := job.Error
		if msg == "" {
			msg = "export failed"
		}
		writeSSE(w, "error", msg)
	}
}
