package types

import (
	"maps"
	"slices"
	"time"
)

// ArcType classifies a character arc.
type ArcType string

const (
	ArcGrowth       ArcType = "growth"
	ArcRedemption   ArcType = "redemption"
	ArcQuest        ArcType = "quest"
	ArcTragedy      ArcType = "tragedy"
	ArcRelationship ArcType = "relationship"
	ArcMystery      ArcType = "mystery"
)

var ValidArcTypes = []ArcType{ArcGrowth, ArcRedemption, ArcQuest, ArcTragedy, ArcRelationship, ArcMystery}

func (t ArcType) Valid() bool { return slices.Contains(ValidArcTypes, t) }

func (t *ArcType) UnmarshalText(b []byte) error {
	v := ArcType(b)
	if !v.Valid() {
		return Invalid("arc_type", "unknown arc type %q", string(b))
	}
	*t = v
	return nil
}

// ArcStatus is the lifecycle state of a character arc.
type ArcStatus string

const (
	ArcActive    ArcStatus = "active"
	ArcPaused    ArcStatus = "paused"
	ArcCompleted ArcStatus = "completed"
	ArcAbandoned ArcStatus = "abandoned"
)

var ValidArcStatuses = []ArcStatus{ArcActive, ArcPaused, ArcCompleted, ArcAbandoned}

func (s ArcStatus) Valid() bool { return slices.Contains(ValidArcStatuses, s) }

func (s *ArcStatus) UnmarshalText(b []byte) error {
	v := ArcStatus(b)
	if !v.Valid() {
		return Invalid("arc_status", "unknown arc status %q", string(b))
	}
	*s = v
	return nil
}

// Milestone is one step in a character arc.
type Milestone struct {
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	MemoryIDs   []string  `json:"memory_ids,omitempty" yaml:"memory_ids,omitempty"` // Weak references
	Completion  float64   `json:"completion" yaml:"completion"`                     // In [0,1]
	AddedAt     time.Time `json:"added_at" yaml:"added_at"`
}

// CharacterArc tracks long-running development of one character. Arcs are
// never hard-deleted; they end as completed or abandoned.
type CharacterArc struct {
	ID          string      `json:"id" yaml:"id"`
	CharacterID string      `json:"character_id" yaml:"character_id"`
	Type        ArcType     `json:"arc_type" yaml:"arc_type"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Milestones  []Milestone `json:"milestones,omitempty" yaml:"milestones,omitempty"`
	Status      ArcStatus   `json:"status" yaml:"status"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Completion averages milestone completion, weighting later-added milestones
// more: the i-th milestone (0-based, in order of addition) has weight i+1.
func (a *CharacterArc) Completion() float64 {
	if len(a.Milestones) == 0 {
		return 0
	}
	var sum, weights float64
	for i, m := range a.Milestones {
		w := float64(i + 1)
		sum += w * m.Completion
		weights += w
	}
	return sum / weights
}

// Clone returns a deep copy of the arc.
func (a CharacterArc) Clone() CharacterArc {
	ms := make([]Milestone, len(a.Milestones))
	for i, m := range a.Milestones {
		m.MemoryIDs = slices.Clone(m.MemoryIDs)
		ms[i] = m
	}
	if len(ms) == 0 {
		ms = nil
	}
	a.Milestones = ms
	return a
}

// Check validates a decoded arc.
func (a *CharacterArc) Check() error {
	switch {
	case a.ID == "":
		return Invalid("id", "is required")
	case a.CharacterID == "":
		return Invalid("character_id", "is required")
	case !a.Type.Valid():
		return Invalid("arc_type", "unknown arc type %q", a.Type)
	case !a.Status.Valid():
		return Invalid("status", "unknown arc status %q", a.Status)
	}
	for _, m := range a.Milestones {
		if !validUnit(m.Completion) {
			return Invalid("milestones.completion", "%v outside [0,1]", m.Completion)
		}
	}
	return nil
}

// ThreadType classifies a plot thread.
type ThreadType string

const (
	ThreadMystery      ThreadType = "mystery"
	ThreadQuest        ThreadType = "quest"
	ThreadRelationship ThreadType = "relationship"
	ThreadWorldEvent   ThreadType = "world_event"
	ThreadPolitical    ThreadType = "political"
)

var ValidThreadTypes = []ThreadType{ThreadMystery, ThreadQuest, ThreadRelationship, ThreadWorldEvent, ThreadPolitical}

func (t ThreadType) Valid() bool { return slices.Contains(ValidThreadTypes, t) }

func (t *ThreadType) UnmarshalText(b []byte) error {
	v := ThreadType(b)
	if !v.Valid() {
		return Invalid("thread_type", "unknown thread type %q", string(b))
	}
	*t = v
	return nil
}

// ThreadStatus is the lifecycle state of a plot thread.
type ThreadStatus string

const (
	ThreadOpen      ThreadStatus = "open"
	ThreadAdvancing ThreadStatus = "advancing"
	ThreadResolved  ThreadStatus = "resolved"
	ThreadAbandoned ThreadStatus = "abandoned"
)

var ValidThreadStatuses = []ThreadStatus{ThreadOpen, ThreadAdvancing, ThreadResolved, ThreadAbandoned}

func (s ThreadStatus) Valid() bool { return slices.Contains(ValidThreadStatuses, s) }

// Live reports whether the thread still accepts updates.
func (s ThreadStatus) Live() bool { return s == ThreadOpen || s == ThreadAdvancing }

func (s *ThreadStatus) UnmarshalText(b []byte) error {
	v := ThreadStatus(b)
	if !v.Valid() {
		return Invalid("thread_status", "unknown thread status %q", string(b))
	}
	*s = v
	return nil
}

// Thread priority bounds.
const (
	MinThreadPriority = 1
	MaxThreadPriority = 10
)

// ThreadUpdate is one entry in a plot thread's history.
type ThreadUpdate struct {
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	MemoryIDs   []string  `json:"memory_ids,omitempty" yaml:"memory_ids,omitempty"`
	At          time.Time `json:"at" yaml:"at"`
}

// PlotThread tracks an unresolved narrative question. Once resolved only its
// metadata may change.
type PlotThread struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Type         ThreadType     `json:"thread_type" yaml:"thread_type"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Priority     int            `json:"priority" yaml:"priority"`
	Status       ThreadStatus   `json:"status" yaml:"status"`
	CharacterIDs []string       `json:"character_ids,omitempty" yaml:"character_ids,omitempty"`
	Updates      []ThreadUpdate `json:"updates,omitempty" yaml:"updates,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Resolution   string         `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	ResolvedBy   []string       `json:"resolved_by,omitempty" yaml:"resolved_by,omitempty"` // Memory ids documenting the ending
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
}

// LastActivity is the time of the latest update, or creation if none.
func (t *PlotThread) LastActivity() time.Time {
	if n := len(t.Updates); n > 0 {
		return t.Updates[n-1].At
	}
	return t.CreatedAt
}

// UpdatesSince counts updates at or after since.
func (t *PlotThread) UpdatesSince(since time.Time) int {
	n := 0
	for _, u := range t.Updates {
		if !u.At.Before(since) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the thread.
func (t PlotThread) Clone() PlotThread {
	t.CharacterIDs = slices.Clone(t.CharacterIDs)
	t.ResolvedBy = slices.Clone(t.ResolvedBy)
	t.Metadata = maps.Clone(t.Metadata)
	if t.Updates != nil {
		ups := make([]ThreadUpdate, len(t.Updates))
		for i, u := range t.Updates {
			u.MemoryIDs = slices.Clone(u.MemoryIDs)
			ups[i] = u
		}
		t.Updates = ups
	}
	return t
}

// Check validates a decoded thread.
func (t *PlotThread) Check() error {
	switch {
	case t.ID == "":
		return Invalid("id", "is required")
	case t.Name == "":
		return Invalid("name", "is required")
	case !t.Type.Valid():
		return Invalid("thread_type", "unknown thread type %q", t.Type)
	case !t.Status.Valid():
		return Invalid("status", "unknown thread status %q", t.Status)
	case !ValidThreadPriority(t.Priority):
		return Invalid("priority", "%d outside [%d,%d]", t.Priority, MinThreadPriority, MaxThreadPriority)
	}
	return nil
}

// ValidThreadPriority reports whether p is within the thread priority range.
func ValidThreadPriority(p int) bool {
	return p >= MinThreadPriority && p <= MaxThreadPriority
}
