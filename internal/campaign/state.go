package campaign

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/chronicle/pkg/types"
)

// StateVersion is the version written into every state document.
const StateVersion = 1

// State is the portable document holding everything a campaign needs to
// resume: memories of all layers, owner profiles, arcs, threads,
// orchestration events and the decision log.
type State struct {
	Version       int                        `json:"version" yaml:"version"`
	CampaignID    string                     `json:"campaign_id" yaml:"campaign_id"`
	SavedAt       time.Time                  `json:"saved_at" yaml:"saved_at"`
	Memories      []types.MemoryRecord       `json:"memories" yaml:"memories"`
	OwnerProfiles []types.OwnerProfile       `json:"owner_profiles" yaml:"owner_profiles"`
	Arcs          []types.CharacterArc       `json:"arcs" yaml:"arcs"`
	Threads       []types.PlotThread         `json:"threads" yaml:"threads"`
	Events        []types.OrchestrationEvent `json:"events" yaml:"events"`
	DecisionLog   []types.DecisionEntry      `json:"decision_log" yaml:"decision_log"`
	Sequence      int64                      `json:"sequence" yaml:"sequence"`
}

// Section names used in LoadReport.
const (
	SectionMemories      = "memories"
	SectionOwnerProfiles = "owner_profiles"
	SectionArcs          = "arcs"
	SectionThreads       = "threads"
	SectionEvents        = "events"
	SectionDecisionLog   = "decision_log"
	SectionSequence      = "sequence"
)

// LoadReport describes what partial recovery threw away.
type LoadReport struct {
	// Dropped lists whole sections that failed to decode.
	Dropped []string
	// Skipped holds per-item problems inside sections that did decode.
	Skipped []error
}

// Clean reports whether the document loaded without losses.
func (r LoadReport) Clean() bool { return len(r.Dropped) == 0 && len(r.Skipped) == 0 }

// Err returns a *types.CorruptStateError summarizing the losses, or nil.
func (r LoadReport) Err() error {
	if r.Clean() {
		return nil
	}
	var cause error
	if len(r.Skipped) > 0 {
		cause = fmt.Errorf("%d invalid items skipped", len(r.Skipped))
	}
	return &types.CorruptStateError{Sections: r.Dropped, Cause: cause}
}

// decodeState parses blob section by section. A section that fails to
// decode is dropped and reported; the rest of the document still loads. Only
// a blob that is not a JSON object, lacks a campaign id, or has an
// unsupported version fails outright.
func decodeState(blob []byte) (State, LoadReport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return State{}, LoadReport{}, &types.CorruptStateError{Sections: []string{"document"}, Cause: err}
	}

	var st State
	var report LoadReport
	header := []struct {
		key string
		dst any
	}{
		{"version", &st.Version},
		{"campaign_id", &st.CampaignID},
		{"saved_at", &st.SavedAt},
	}
	for _, h := range header {
		if msg, ok := raw[h.key]; ok {
			if err := json.Unmarshal(msg, h.dst); err != nil {
				return State{}, LoadReport{}, &types.CorruptStateError{Sections: []string{h.key}, Cause: err}
			}
		}
	}
	if st.CampaignID == "" {
		return State{}, LoadReport{}, &types.CorruptStateError{Sections: []string{"campaign_id"}, Cause: fmt.Errorf("campaign_id is missing")}
	}
	if st.Version != StateVersion {
		return State{}, LoadReport{}, &types.CorruptStateError{Cause: fmt.Errorf("unsupported state version %d", st.Version)}
	}

	st.Memories = decodeItems[types.MemoryRecord](raw, SectionMemories, &report)
	st.OwnerProfiles = decodeItems[types.OwnerProfile](raw, SectionOwnerProfiles, &report)
	st.Arcs = decodeItems[types.CharacterArc](raw, SectionArcs, &report)
	st.Threads = decodeItems[types.PlotThread](raw, SectionThreads, &report)
	st.Events = decodeItems[types.OrchestrationEvent](raw, SectionEvents, &report)
	st.DecisionLog = decodeItems[types.DecisionEntry](raw, SectionDecisionLog, &report)
	if msg, ok := raw[SectionSequence]; ok {
		if err := json.Unmarshal(msg, &st.Sequence); err != nil {
			report.Dropped = append(report.Dropped, SectionSequence)
		}
	}
	for _, section := range report.Dropped {
		log.Error("dropped corrupt state section", "campaign", st.CampaignID, "section", section)
	}
	return st, report, nil
}

// YAML renders the state for human inspection and export.
func (s *State) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state as yaml: %w", err)
	}
	return out, nil
}

// decodeItems decodes the array at raw[key] one element at a time so a bad
// element costs only itself. A value that is not an array drops the section.
func decodeItems[T any](raw map[string]json.RawMessage, key string, report *LoadReport) []T {
	msg, ok := raw[key]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		report.Dropped = append(report.Dropped, key)
		return nil
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			report.Skipped = append(report.Skipped, fmt.Errorf("%s[%d]: %w", key, i, err))
			continue
		}
		out = append(out, v)
	}
	return out
}
