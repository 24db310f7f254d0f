package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"musicstreamer/internal/resolver"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type infoResponse struct {
	Status    string   `json:"status"`
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Providers []string `json:"providers"`
	Timestamp int64    `json:"timestamp"`
}

// streamHandler resolves GET /stream/{id}?region=XX.
func streamHandler(service StreamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		region := r.URL.Query().Get("region")

		result, err := service.ResolveStream(r.Context(), id, region)
		if err != nil {
			status, detail := errorStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("Stream resolution failed",
					zap.String("track", id),
					zap.String("request_id", requestID(r.Context())),
					zap.Error(err))
			}
			writeError(w, status, detail)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// errorStatus maps service errors to an HTTP status and client-facing detail.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, resolver.ErrInvalidTrackRef):
		return http.StatusBadRequest, "Invalid track id"
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound, "Track not found"
	case errors.Is(err, resolver.ErrAuthRequired):
		return http.StatusUnauthorized, "Provider authorization required"
	case errors.Is(err, resolver.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "All providers are unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func infoHandler(info Info, service StreamService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, infoResponse{
			Status:    "ok",
			Service:   info.ServiceName,
			Version:   info.Version,
			Providers: service.Providers(),
			Timestamp: time.Now().Unix(),
		})
	}
}

func healthHandler(info Info) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": info.ServiceName})
	}
}

// readyHandler reports ready once at least one provider is configured.
func readyHandler(info Info, service StreamService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if len(service.Providers()) == 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "service": info.ServiceName})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": info.ServiceName})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
