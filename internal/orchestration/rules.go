package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/chronicle/internal/narrative"
	"github.com/scrypster/chronicle/pkg/types"
)

// candidates applies the arc, thread and trend rules to snap in that order.
// The order is the final tie-breaker when ranking.
func (e *Engine) candidates(snap *narrative.Snapshot) []types.OrchestrationEvent {
	var out []types.OrchestrationEvent
	for _, as := range snap.ActiveArcs {
		if ev, ok := e.arcBeat(as); ok {
			out = append(out, ev)
		}
	}
	for _, ts := range snap.OpenThreads {
		if ev, ok := e.threadBeat(ts); ok {
			out = append(out, ev)
		}
	}
	if ev, ok := e.trendBeat(snap); ok {
		out = append(out, ev)
	}
	return out
}

func (e *Engine) arcBeat(as narrative.ArcState) (types.OrchestrationEvent, bool) {
	c := as.Completion
	if c < e.config.ReadyBandLow || c >= e.config.ReadyBandHigh {
		return types.OrchestrationEvent{}, false
	}
	arc := as.Arc
	ev := types.OrchestrationEvent{
		Type:         types.EventCharacterInsight,
		Priority:     types.PriorityMedium,
		CharacterID:  arc.CharacterID,
		ArcID:        arc.ID,
		ArcReadiness: c,
		TriggerConditions: fmt.Sprintf("%s arc of %s is %.0f%% complete (ready band %.0f%%-%.0f%%)",
			arc.Type, arc.CharacterID, c*100, e.config.ReadyBandLow*100, e.config.ReadyBandHigh*100),
		Recommendations: []types.RecommendedUpdate{{
			TargetKind: "arc",
			TargetID:   arc.ID,
			Action:     "add_milestone",
		}},
	}
	if c >= e.config.LateArcCompletion {
		ev.Priority = types.PriorityHigh
	}
	if arc.Type == types.ArcRelationship {
		ev.Type = types.EventRelationshipDevelopment
		ev.Title = fmt.Sprintf("A turning point for %s", arc.CharacterID)
		ev.Description = fmt.Sprintf("Let a relationship beat move %s's arc forward: %s", arc.CharacterID, describeArc(arc))
		ev.SuggestedActions = []string{
			"Give a companion a reason to confide in or confront " + arc.CharacterID,
			"Call back to a shared memory from earlier in the arc",
		}
	} else {
		ev.Title = fmt.Sprintf("Insight for %s", arc.CharacterID)
		ev.Description = fmt.Sprintf("Offer %s a moment of self-realization: %s", arc.CharacterID, describeArc(arc))
		ev.SuggestedActions = []string{
			"Stage a scene that tests what " + arc.CharacterID + " has learned",
			"Surface a memory tied to the latest milestone",
		}
	}
	if n := len(arc.Milestones); n > 0 {
		ev.Recommendations[0].Details = map[string]any{"after": arc.Milestones[n-1].Title}
	}
	return ev, true
}

func (e *Engine) threadBeat(ts narrative.ThreadState) (types.OrchestrationEvent, bool) {
	t := ts.Thread
	ev := types.OrchestrationEvent{
		ThreadID:       t.ID,
		ThreadPriority: t.Priority,
	}
	if len(t.CharacterIDs) > 0 {
		ev.CharacterID = t.CharacterIDs[0]
	}
	idle := roundHours(ts.Idle)

	switch {
	case ts.RecentUpdates >= e.config.ResolutionUpdates && t.Priority >= e.config.HighThreadPriority:
		ev.Type = types.EventResolutionOpportunity
		ev.Priority = e.config.threadPriority(t.Priority)
		ev.Title = fmt.Sprintf("%q is ready to resolve", t.Name)
		ev.Description = fmt.Sprintf("The %s thread %q has built momentum; offer the player a way to bring it to an end.", t.Type, t.Name)
		ev.SuggestedActions = []string{
			"Put the final clue or confrontation within reach",
			"Let an involved character force a decision",
		}
		ev.TriggerConditions = fmt.Sprintf("priority %d thread with %d updates in the recent window", t.Priority, ts.RecentUpdates)
		ev.Recommendations = []types.RecommendedUpdate{{TargetKind: "thread", TargetID: t.ID, Action: "resolve"}}

	case ts.Idle >= e.config.StagnationWindow && t.Priority >= e.config.HighThreadPriority:
		ev.Priority = e.config.threadPriority(t.Priority)
		if t.Type == types.ThreadMystery || t.Type == types.ThreadPolitical {
			ev.Type = types.EventPlotTwist
			ev.Title = fmt.Sprintf("A twist in %q", t.Name)
			ev.Description = fmt.Sprintf("The %s thread %q has gone quiet. Reveal something that reframes what the player believes.", t.Type, t.Name)
			ev.SuggestedActions = []string{
				"Reveal that a trusted source lied",
				"Expose a hidden connection between two known facts",
			}
		} else {
			ev.Type = types.EventTensionEscalation
			ev.Title = fmt.Sprintf("Raise the stakes of %q", t.Name)
			ev.Description = fmt.Sprintf("The %s thread %q has stalled. Make ignoring it costly.", t.Type, t.Name)
			ev.SuggestedActions = []string{
				"Introduce a deadline",
				"Have an antagonist make a visible move",
			}
		}
		ev.TriggerConditions = fmt.Sprintf("priority %d thread idle for %s", t.Priority, idle)
		ev.Recommendations = []types.RecommendedUpdate{{TargetKind: "thread", TargetID: t.ID, Action: "add_update"}}

	case ts.Idle >= e.config.StagnationWindow:
		ev.Type = types.EventTensionEscalation
		ev.Priority = types.PriorityMedium
		ev.Title = fmt.Sprintf("Nudge %q", t.Name)
		ev.Description = fmt.Sprintf("The %s thread %q has stalled. Remind the player it is still open.", t.Type, t.Name)
		ev.SuggestedActions = []string{"Have a minor character mention it in passing"}
		ev.TriggerConditions = fmt.Sprintf("priority %d thread idle for %s", t.Priority, idle)
		ev.Recommendations = []types.RecommendedUpdate{{
			TargetKind: "thread",
			TargetID:   t.ID,
			Action:     "raise_priority",
			Details:    map[string]any{"priority": min(t.Priority+1, types.MaxThreadPriority)},
		}}

	case len(t.Updates) == 0:
		ev.Type = types.EventNewQuest
		ev.Priority = types.PriorityLow
		if t.Priority >= e.config.HighThreadPriority {
			ev.Priority = types.PriorityMedium
		}
		ev.Title = fmt.Sprintf("Open a path into %q", t.Name)
		ev.Description = fmt.Sprintf("The %s thread %q has not started yet. Give the player a concrete hook.", t.Type, t.Name)
		ev.SuggestedActions = []string{"Offer a job, rumor or summons that leads into the thread"}
		ev.TriggerConditions = fmt.Sprintf("priority %d thread with no updates", t.Priority)
		ev.Recommendations = []types.RecommendedUpdate{{TargetKind: "thread", TargetID: t.ID, Action: "add_update"}}

	case t.Status.Live():
		// In motion but short of a payoff: a low-priority side lead.
		ev.Type = types.EventNewQuest
		ev.Priority = types.PriorityLow
		ev.Title = fmt.Sprintf("A side lead for %q", t.Name)
		ev.Description = fmt.Sprintf("The %s thread %q is moving. Offer a lead that feeds it without forcing the ending.", t.Type, t.Name)
		ev.SuggestedActions = []string{"Let a new contact hint at the next step"}
		ev.TriggerConditions = fmt.Sprintf("priority %d thread with %d updates in the recent window, idle for %s",
			t.Priority, ts.RecentUpdates, idle)
		ev.Recommendations = []types.RecommendedUpdate{{TargetKind: "thread", TargetID: t.ID, Action: "add_update"}}

	default:
		return types.OrchestrationEvent{}, false
	}
	return ev, true
}

func (e *Engine) trendBeat(snap *narrative.Snapshot) (types.OrchestrationEvent, bool) {
	tr := snap.Trend
	if tr.SampleSize < e.config.MinTrendSample {
		return types.OrchestrationEvent{}, false
	}
	if len(tr.Dominant) > 0 && e.config.negative(tr.Dominant[0]) {
		trigger := fmt.Sprintf("%s dominated the last %d memories (intensity %.2f)", strings.Join(tr.Dominant, " and "), tr.SampleSize, tr.Intensity)
		if len(snap.OpenThreads) > 0 {
			t := snap.OpenThreads[0].Thread
			return types.OrchestrationEvent{
				Type:           types.EventMoralDilemma,
				Priority:       types.PriorityMedium,
				Title:          fmt.Sprintf("A hard choice in %q", t.Name),
				Description:    "The story has been dark for a while. Turn that weight into a choice with no clean answer.",
				ThreadID:       t.ID,
				ThreadPriority: t.Priority,
				SuggestedActions: []string{
					"Force a choice between two things the player cares about",
					"Let the cost of the choice echo the recent " + tr.Dominant[0],
				},
				TriggerConditions: trigger,
			}, true
		}
		return types.OrchestrationEvent{
			Type:              types.EventQuietMoment,
			Priority:          types.PriorityMedium,
			Title:             "Let them breathe",
			Description:       "The story has been dark for a while. Offer a scene of rest, warmth or humor.",
			SuggestedActions:  []string{"A campfire conversation", "An unexpected kindness from a stranger"},
			TriggerConditions: trigger,
		}, true
	}
	if tr.Intensity < e.config.FlatIntensity {
		return types.OrchestrationEvent{
			Type:              types.EventWorldEvent,
			Priority:          types.PriorityMedium,
			Title:             "Something stirs in the world",
			Description:       "Recent play has been emotionally flat. Introduce an outside event the player cannot ignore.",
			SuggestedActions:  []string{"A storm, fire or festival disrupts routine", "News arrives from far away"},
			TriggerConditions: fmt.Sprintf("mean emotional weight %.2f over %d memories is below %.2f", tr.Intensity, tr.SampleSize, e.config.FlatIntensity),
		}, true
	}
	return types.OrchestrationEvent{}, false
}

// fallback is proposed when nothing else survives, so pacing never goes
// silent. It references nothing.
func fallback(snap *narrative.Snapshot, negative func(string) bool) types.OrchestrationEvent {
	if len(snap.Trend.Dominant) > 0 && negative(snap.Trend.Dominant[0]) {
		return types.OrchestrationEvent{
			Type:              types.EventQuietMoment,
			Priority:          types.PriorityLow,
			Title:             "A quiet moment",
			Description:       "Give the characters a pause to reflect on what has happened.",
			SuggestedActions:  []string{"Let a companion share a personal story"},
			TriggerConditions: "no specific narrative state to build on",
		}
	}
	return types.OrchestrationEvent{
		Type:              types.EventWorldEvent,
		Priority:          types.PriorityLow,
		Title:             "The world moves on",
		Description:       "Introduce a small development in the wider world to give the player something to react to.",
		SuggestedActions:  []string{"A rumor reaches the party", "A stranger arrives with a request"},
		TriggerConditions: "no specific narrative state to build on",
	}
}

func describeArc(arc types.CharacterArc) string {
	if arc.Description != "" {
		return arc.Description
	}
	return string(arc.Type)
}

func roundHours(d time.Duration) time.Duration { return d.Round(time.Hour) }
