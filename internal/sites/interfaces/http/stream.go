package http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	siteapp "terralens/internal/sites/application"
	sites "terralens/internal/sites/domain"
)

const heartbeatInterval = 25 * time.Second

// StreamHandler serves live site snapshots as Server-Sent Events. Each
// connection owns one repository subscription.
type StreamHandler struct {
	repo      *siteapp.Repository
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(repo *siteapp.Repository, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{repo: repo, logger: logger, heartbeat: heartbeatInterval}
}

// ServeHTTP handles GET /api/v1/sites/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	latest := make(chan []sites.MiningSite, 1)
	failed := make(chan error, 1)
	sub, err := h.repo.Subscribe(r.Context(), func(list []sites.MiningSite) {
		// keep only the newest snapshot for a slow client
		select {
		case latest <- list:
		default:
			select {
			case <-latest:
			default:
			}
			latest <- list
		}
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		sub.Unsubscribe()
		<-sub.Done()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case list := <-latest:
			payload, err := json.Marshal(list)
			if err != nil {
				h.logger.Error("encode site snapshot", zap.Error(err))
				return
			}
			writeEvent(w, "sites", payload)
			flusher.Flush()
		case err := <-failed:
			h.logger.Warn("site stream closed on store error", zap.Error(err))
			writeEvent(w, "error", []byte(`{"error":"Failed to load sites."}`))
			flusher.Flush()
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload []byte) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
