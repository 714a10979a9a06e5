package types_test

import (
	"testing"

	"github.com/scrypster/chronicle/pkg/types"
)

func TestArcTransitions(t *testing.T) {
	valid := []struct{ from, to types.ArcStatus }{
		{types.ArcActive, types.ArcPaused},
		{types.ArcPaused, types.ArcActive},
		{types.ArcActive, types.ArcCompleted},
		{types.ArcPaused, types.ArcAbandoned},
	}
	for _, tc := range valid {
		if !types.IsValidArcTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be valid", tc.from, tc.to)
		}
	}

	invalid := []struct{ from, to types.ArcStatus }{
		{types.ArcCompleted, types.ArcActive},
		{types.ArcAbandoned, types.ArcPaused},
		{types.ArcActive, types.ArcActive},
		{"bogus", types.ArcActive},
	}
	for _, tc := range invalid {
		if types.IsValidArcTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be invalid", tc.from, tc.to)
		}
	}
}

// TestThreadTransitions verifies resolved and abandoned threads are terminal
// and advancing never returns to open.
func TestThreadTransitions(t *testing.T) {
	if !types.IsValidThreadTransition(types.ThreadOpen, types.ThreadAdvancing) {
		t.Error("open -> advancing should be valid")
	}
	if !types.IsValidThreadTransition(types.ThreadAdvancing, types.ThreadResolved) {
		t.Error("advancing -> resolved should be valid")
	}
	if types.IsValidThreadTransition(types.ThreadAdvancing, types.ThreadOpen) {
		t.Error("advancing -> open should be invalid")
	}
	for _, terminal := range []types.ThreadStatus{types.ThreadResolved, types.ThreadAbandoned} {
		for _, next := range types.ValidThreadStatuses {
			if types.IsValidThreadTransition(terminal, next) {
				t.Errorf("Expected %s to be terminal, but -> %s was allowed", terminal, next)
			}
		}
	}
}

func TestEventTransitions(t *testing.T) {
	for _, next := range []types.EventStatus{types.EventExecuted, types.EventDismissed, types.EventExpired} {
		if !types.IsValidEventTransition(types.EventPending, next) {
			t.Errorf("pending -> %s should be valid", next)
		}
		if !next.Terminal() {
			t.Errorf("%s should be terminal", next)
		}
		if types.IsValidEventTransition(next, types.EventPending) {
			t.Errorf("%s -> pending should be invalid", next)
		}
	}
}
