package models

import (
	"strings"
	"time"
)

// Severity enumerates event levels as tagged by instrumented applications.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Priority is the optional producer-assigned urgency of an event.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Event is one tagged occurrence reported by an application. Events are
// immutable once received.
type Event struct {
	Type          string
	CorrelationID string
	Service       string
	Level         Severity
	Priority      Priority
	Timestamp     time.Time
	Details       map[string]any
	Metadata      EventMetadata
}

// EventMetadata carries optional identifiers attached by the producer.
type EventMetadata struct {
	ErrorCode string
	UserID    string
	SessionID string
	DeviceID  string
	Extra     map[string]string
}

// IsCritical reports whether the event is worth analysing on its own: high
// priority, or error/critical level.
func (e Event) IsCritical() bool {
	return e.Priority == PriorityHigh || e.Level == SeverityError || e.Level == SeverityCritical
}

// AffectedService resolves the service an event points at, falling back to the
// details payload and finally "Unknown" when the producer tagged nothing.
func (e Event) AffectedService() string {
	if e.Service != "" {
		return e.Service
	}
	if v, ok := e.Details["service"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "Unknown"
}

// CorrelationGroup is a non-empty ordered run of events sharing one
// correlation key within a batch.
type CorrelationGroup struct {
	Key    string
	Events []Event
}

// ParseSeverity maps a free-form level string onto the known set. Unrecognised
// values default to info rather than failing ingestion.
func ParseSeverity(value string) Severity {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return SeverityDebug
	case "warn", "warning":
		return SeverityWarn
	case "error":
		return SeverityError
	case "critical", "fatal":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// ParsePriority maps a free-form priority string onto the known set. Empty and
// unrecognised values stay empty so the severity filter decides alone.
func ParsePriority(value string) Priority {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	default:
		return ""
	}
}
