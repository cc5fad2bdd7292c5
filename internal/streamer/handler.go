package streamer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const (
	healthMessage   = "YouTube Audio Streamer is running"
	startedMessage  = "Stream started successfully"
	missingKeyError = "Missing stream key"
	badBodyError    = "Invalid request body"
	maxBodyBytes    = 64 << 10
)

// Starter is the part of Manager the HTTP layer depends on.
type Starter interface {
	StartStream(ctx context.Context, cfg StreamConfig) error
	Status() Status
}

// Defaults are the process-wide values a request falls back to.
type Defaults struct {
	StreamKey string
	StreamURL string
	VideoPath string
}

// Config returns the StreamConfig for the defaults, with key overriding the default key when non-nil.
func (d Defaults) Config(key *string) StreamConfig {
	cfg := StreamConfig{StreamKey: d.StreamKey, StreamURL: d.StreamURL, VideoPath: d.VideoPath}
	if key != nil {
		cfg.StreamKey = *key
	}
	return cfg
}

// startStreamRequest is the POST /start-stream body. Only an absent key falls
// back to the default; "" and null are kept and fail validation.
type startStreamRequest struct {
	StreamKey json.RawMessage `json:"streamKey"`
}

// key returns nil when the field was absent.
func (r startStreamRequest) key() (*string, error) {
	if r.StreamKey == nil {
		return nil, nil
	}
	var key string
	if string(r.StreamKey) == "null" {
		return &key, nil
	}
	if err := json.Unmarshal(r.StreamKey, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// Handler exposes the control endpoints using go-chi.
type Handler struct {
	svc      Starter
	defaults Defaults
	log      *slog.Logger
}

// NewHandler returns a Handler delegating to svc.
func NewHandler(svc Starter, defaults Defaults, log *slog.Logger) *Handler {
	return &Handler{svc: svc, defaults: defaults, log: log}
}

// Health handles GET /.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": healthMessage})
}

// StartStream handles POST /start-stream. Body: { "streamKey": "..." }, optional.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req startStreamRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("invalid start-stream body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, badBodyError)
		return
	}

	key, err := req.key()
	if err != nil {
		h.log.Debug("invalid streamKey", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, badBodyError)
		return
	}

	cfg := h.defaults.Config(key)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, missingKeyError)
		return
	}

	if err := h.svc.StartStream(r.Context(), cfg); err != nil {
		h.log.Error("streaming error",
			slog.Int("stream_key_length", len(cfg.StreamKey)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": startedMessage})
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
