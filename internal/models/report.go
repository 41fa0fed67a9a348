package models

import "time"

// EvidenceType tags where a piece of supporting evidence came from.
type EvidenceType string

const (
	EvidenceLog         EvidenceType = "log"
	EvidenceDiff        EvidenceType = "diff"
	EvidenceSystemMap   EvidenceType = "system_map"
	EvidenceCorrelation EvidenceType = "correlation"
)

// EvidenceItem is one sourced detail supporting a hypothesis. Confidence is a
// percentage in [0,100].
type EvidenceItem struct {
	Type       EvidenceType
	Source     string
	Detail     string
	Confidence float64
}

// Hypothesis is one root-cause candidate. Never mutated after creation, only
// ranked.
type Hypothesis struct {
	ID               string
	Title            string
	Description      string
	Confidence       float64
	Evidence         []EvidenceItem
	SuggestedActions []string
	RelatedServices  []string
}

// AnalysisReport is the finished product for one correlation group: ranked
// hypotheses, the blast radius, and a one-line summary for human review.
type AnalysisReport struct {
	CorrelationID    string
	TriggerEventType string
	GeneratedAt      time.Time
	Hypotheses       []Hypothesis
	AffectedServices []string
	Summary          string
}
