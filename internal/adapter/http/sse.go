package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/orator/internal/service"
)

const keepAliveInterval = 15 * time.Second

type SSEHandler struct {
	eventBus  *service.EventBus
	jobs      JobService
	keepAlive time.Duration
}

func NewSSEHandler(eventBus *service.EventBus, jobs JobService) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		jobs:      jobs,
		keepAlive: keepAliveInterval,
	}
}

func sseWrite(w http.ResponseWriter, eventName string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams a job's progress until it reaches a terminal stage, the job is
// deleted or the client goes away.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		// subscribe before reading so no update falls between the two
		ch := h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)

		current, err := h.jobs.Progress(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		if err := sseWrite(w, service.EventProgress, current); err != nil || current.ProcessingStage.Terminal() {
			return
		}

		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()

		last := current.ProgressPercentage
		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				p := event.Progress
				if event.Type == service.EventDeleted {
					_ = sseWrite(w, event.Type, p)
					return
				}
				if p.ProgressPercentage < last && !p.ProcessingStage.Terminal() {
					continue
				}
				last = p.ProgressPercentage
				if err := sseWrite(w, event.Type, p); err != nil {
					return
				}
				if p.ProcessingStage.Terminal() {
					return
				}
			}
		}
	}
}
