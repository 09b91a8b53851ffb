package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
	"github.com/dessources/Go-rate-limited-url-shortener/models"
)

func metricsResponse(s metrics.Snapshot) models.MetricsResponse {
	return models.MetricsResponse{
		GlobalCapacity:        s.GlobalCapacity,
		GlobalTokensAvailable: s.GlobalTokensAvailable,
		GlobalTokensUsed:      s.GlobalTokensUsed,
		ActiveClientCount:     s.ActiveClientCount,
		TotalLinksStored:      s.TotalLinksStored,
		LinksResolved:         s.LinksResolved,
		Admitted:              s.Admitted,
		GlobalRejected:        s.GlobalRejected,
		ClientRejected:        s.ClientRejected,
	}
}

// MetricsStreamHandler GET /api/metrics/stream. Server-Sent Events: снимок метрик
// сразу и затем раз в streamInterval, пока клиент не отключится
func (h *Handler) MetricsStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			ErrorMessage: "Metrics streaming is currently unsupported.",
			Reason:       ReasonInternal,
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() error {
		data, err := json.Marshal(metricsResponse(h.Service.Metrics.Snapshot()))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(); err != nil {
		h.logger.Debugw("metrics stream write failed", "error", err)
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debugw("metrics stream closed by client", "request_id", RequestIDFromContext(r.Context()))
			return
		case <-h.streamsDone:
			h.logger.Debugw("metrics stream closed on shutdown", "request_id", RequestIDFromContext(r.Context()))
			return
		case <-ticker.C:
			if err := send(); err != nil {
				h.logger.Debugw("metrics stream write failed", "error", err)
				return
			}
		}
	}
}
