package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/incidentstack/faultline/internal/metrics"
	"github.com/incidentstack/faultline/internal/models"
	"github.com/incidentstack/faultline/internal/utils"
)

// Ingestor accepts validated events for asynchronous analysis.
type Ingestor interface {
	Enqueue(events []models.Event)
}

// Handler serves the ingestion webhook and health endpoints.
type Handler struct {
	logger   *slog.Logger
	ingestor Ingestor
}

// NewHandler constructs the webhook handler.
func NewHandler(logger *slog.Logger, ingestor Ingestor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ingestor: ingestor}
}

// Routes returns the HTTP mux for the ingestion API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events", h.handleEvents)
	mux.HandleFunc("/healthz", h.handleHealth)
	return mux
}

// eventPayload is the wire shape of a single reported event.
type eventPayload struct {
	Type          string         `json:"type"`
	CorrelationID string         `json:"correlation_id"`
	Service       string         `json:"service"`
	Level         string         `json:"level"`
	Priority      string         `json:"priority"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details"`
	Metadata      struct {
		ErrorCode string            `json:"error_code"`
		UserID    string            `json:"user_id"`
		SessionID string            `json:"session_id"`
		DeviceID  string            `json:"device_id"`
		Extra     map[string]string `json:"extra"`
	} `json:"metadata"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	var body struct {
		Environment string         `json:"environment"`
		Events      []eventPayload `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode payload: %v", err))
		return
	}
	if len(body.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events array is required")
		return
	}

	events := make([]models.Event, 0, len(body.Events))
	for i, p := range body.Events {
		event, err := toEvent(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		events = append(events, event)
	}

	h.ingestor.Enqueue(events)
	metrics.ObserveIngested(len(events))
	h.logger.Debug("events accepted", slog.Int("count", len(events)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"accepted": len(events)})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func toEvent(p eventPayload) (models.Event, error) {
	if strings.TrimSpace(p.Type) == "" {
		return models.Event{}, fmt.Errorf("type is required")
	}

	ts := time.Now().UTC()
	if p.Timestamp != "" {
		parsed, err := utils.ParseRFC3339(p.Timestamp)
		if err != nil {
			return models.Event{}, fmt.Errorf("timestamp: %w", err)
		}
		ts = parsed
	}

	return models.Event{
		Type:          p.Type,
		CorrelationID: p.CorrelationID,
		Service:       p.Service,
		Level:         models.ParseSeverity(p.Level),
		Priority:      models.ParsePriority(p.Priority),
		Timestamp:     ts,
		Details:       p.Details,
		Metadata: models.EventMetadata{
			ErrorCode: p.Metadata.ErrorCode,
			UserID:    p.Metadata.UserID,
			SessionID: p.Metadata.SessionID,
			DeviceID:  p.Metadata.DeviceID,
			Extra:     p.Metadata.Extra,
		},
	}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
