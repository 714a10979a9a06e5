package types

import (
	"maps"
	"slices"
	"time"
)

// EventType classifies a proposed narrative development.
type EventType string

const (
	EventNewQuest                EventType = "new_quest"
	EventMoralDilemma            EventType = "moral_dilemma"
	EventRelationshipDevelopment EventType = "relationship_development"
	EventWorldEvent              EventType = "world_event"
	EventCharacterInsight        EventType = "character_insight"
	EventPlotTwist               EventType = "plot_twist"
	EventResolutionOpportunity   EventType = "resolution_opportunity"
	EventTensionEscalation       EventType = "tension_escalation"
	EventQuietMoment             EventType = "quiet_moment"
)

var ValidEventTypes = []EventType{
	EventNewQuest,
	EventMoralDilemma,
	EventRelationshipDevelopment,
	EventWorldEvent,
	EventCharacterInsight,
	EventPlotTwist,
	EventResolutionOpportunity,
	EventTensionEscalation,
	EventQuietMoment,
}

func (t EventType) Valid() bool { return slices.Contains(ValidEventTypes, t) }

func (t *EventType) UnmarshalText(b []byte) error {
	v := EventType(b)
	if !v.Valid() {
		return Invalid("event_type", "unknown event type %q", string(b))
	}
	*t = v
	return nil
}

// EventPriority is ordinal: critical > high > medium > low.
type EventPriority string

const (
	PriorityCritical EventPriority = "critical"
	PriorityHigh     EventPriority = "high"
	PriorityMedium   EventPriority = "medium"
	PriorityLow      EventPriority = "low"
)

// Rank returns a sortable weight; higher is more urgent. Unknown values rank 0.
func (p EventPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p EventPriority) Valid() bool { return p.Rank() > 0 }

func (p *EventPriority) UnmarshalText(b []byte) error {
	v := EventPriority(b)
	if !v.Valid() {
		return Invalid("priority", "unknown event priority %q", string(b))
	}
	*p = v
	return nil
}

// EventStatus is the lifecycle state of an orchestration event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventExecuted  EventStatus = "executed"
	EventDismissed EventStatus = "dismissed"
	EventExpired   EventStatus = "expired"
)

var ValidEventStatuses = []EventStatus{EventPending, EventExecuted, EventDismissed, EventExpired}

func (s EventStatus) Valid() bool { return slices.Contains(ValidEventStatuses, s) }

// Terminal reports whether s has no outgoing transitions.
func (s EventStatus) Terminal() bool { return s == EventExecuted || s == EventDismissed || s == EventExpired }

func (s *EventStatus) UnmarshalText(b []byte) error {
	v := EventStatus(b)
	if !v.Valid() {
		return Invalid("status", "unknown event status %q", string(b))
	}
	*s = v
	return nil
}

// RecommendedUpdate is a side-channel suggestion that collaborators may apply
// to an arc or thread. The orchestration engine never applies it itself.
type RecommendedUpdate struct {
	TargetKind string         `json:"target_kind" yaml:"target_kind"` // "thread" or "arc"
	TargetID   string         `json:"target_id" yaml:"target_id"`
	Action     string         `json:"action" yaml:"action"` // e.g. "resolve", "raise_priority", "add_milestone"
	Details    map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// OrchestrationEvent is a system-proposed narrative development.
type OrchestrationEvent struct {
	ID                string              `json:"id" yaml:"id"`
	Type              EventType           `json:"event_type" yaml:"event_type"`
	Priority          EventPriority       `json:"priority" yaml:"priority"`
	Title             string              `json:"title" yaml:"title"`
	Description       string              `json:"description" yaml:"description"`
	SuggestedActions  []string            `json:"suggested_actions,omitempty" yaml:"suggested_actions,omitempty"`
	TriggerConditions string              `json:"trigger_conditions" yaml:"trigger_conditions"`
	CharacterID       string              `json:"character_id,omitempty" yaml:"character_id,omitempty"`
	ThreadID          string              `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	ArcID             string              `json:"arc_id,omitempty" yaml:"arc_id,omitempty"`
	Recommendations   []RecommendedUpdate `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	Status            EventStatus         `json:"status" yaml:"status"`
	CreatedAt         time.Time           `json:"created_at" yaml:"created_at"`
	ExecutedAt        *time.Time          `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty" yaml:"closed_at,omitempty"`

	// Ranking keys captured when the event was proposed.
	ThreadPriority int     `json:"thread_priority,omitempty" yaml:"thread_priority,omitempty"`
	ArcReadiness   float64 `json:"arc_readiness,omitempty" yaml:"arc_readiness,omitempty"`
	Seq            int64   `json:"seq" yaml:"seq"`
}

// Clone returns a deep copy of the event.
func (e OrchestrationEvent) Clone() OrchestrationEvent {
	e.SuggestedActions = slices.Clone(e.SuggestedActions)
	if e.Recommendations != nil {
		recs := make([]RecommendedUpdate, len(e.Recommendations))
		for i, r := range e.Recommendations {
			r.Details = maps.Clone(r.Details)
			recs[i] = r
		}
		e.Recommendations = recs
	}
	if e.ExecutedAt != nil {
		t := *e.ExecutedAt
		e.ExecutedAt = &t
	}
	if e.ClosedAt != nil {
		t := *e.ClosedAt
		e.ClosedAt = &t
	}
	return e
}

// Check validates a decoded event.
func (e *OrchestrationEvent) Check() error {
	switch {
	case e.ID == "":
		return Invalid("id", "is required")
	case !e.Type.Valid():
		return Invalid("event_type", "unknown event type %q", e.Type)
	case !e.Priority.Valid():
		return Invalid("priority", "unknown event priority %q", e.Priority)
	case !e.Status.Valid():
		return Invalid("status", "unknown event status %q", e.Status)
	}
	return nil
}

// Decision actions recorded in the log.
const (
	DecisionExecuted  = "executed"
	DecisionDismissed = "dismissed"
)

// DecisionEntry is one append-only record of what happened to a proposed event.
type DecisionEntry struct {
	ID        string    `json:"id" yaml:"id"`
	EventID   string    `json:"event_id" yaml:"event_id"`
	EventType EventType `json:"event_type" yaml:"event_type"`
	ThreadID  string    `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	ArcID     string    `json:"arc_id,omitempty" yaml:"arc_id,omitempty"`
	Action    string    `json:"action" yaml:"action"`
	Outcome   string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}
