package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/handlers/render"
	"github.com/nkiryanov/courier/internal/logger"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams changes concerning the actor as server-sent events.
// The stream ends when the client leaves or the subscription falls behind,
// the client has to reconnect and reread the state then
func handleEvents(events eventSource, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		rc := http.NewResponseController(w)
		// Stream lives longer than server write timeout
		_ = rc.SetWriteDeadline(time.Time{})

		sub := events.Subscribe(actor.Ref)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			l.Error("Streaming is not supported", "error", err)
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			case change, ok := <-sub.Changes():
				if !ok {
					l.Info("Change stream closed", "actor", actor.Ref)
					return
				}
				data, err := json.Marshal(change)
				if err != nil {
					l.Error("Failed to encode change", "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "id: %s:%d\nevent: %s\ndata: %s\n\n", change.Key(), change.Version, change.EntityType, data); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	})
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, map[string]string{"status": "ok"})
	})
}
