package types

// IsValidArcTransition validates arc status changes.
//
// Valid transitions:
//
//	active -> paused | completed | abandoned
//	paused -> active | completed | abandoned
//	completed, abandoned -> (terminal, no transitions out)
func IsValidArcTransition(current, next ArcStatus) bool {
	switch current {
	case ArcActive:
		return next == ArcPaused || next == ArcCompleted || next == ArcAbandoned
	case ArcPaused:
		return next == ArcActive || next == ArcCompleted || next == ArcAbandoned
	default:
		return false
	}
}

// IsValidThreadTransition validates plot thread status changes.
//
// Valid transitions:
//
//	open -> advancing | resolved | abandoned
//	advancing -> resolved | abandoned
//	resolved, abandoned -> (terminal, no transitions out)
//
// Advancing never returns to open; a thread that has moved stays moved.
func IsValidThreadTransition(current, next ThreadStatus) bool {
	switch current {
	case ThreadOpen:
		return next == ThreadAdvancing || next == ThreadResolved || next == ThreadAbandoned
	case ThreadAdvancing:
		return next == ThreadResolved || next == ThreadAbandoned
	default:
		return false
	}
}

// IsValidEventTransition validates orchestration event status changes.
//
// Valid transitions:
//
//	pending -> executed | dismissed | expired
//	executed, dismissed, expired -> (terminal, no transitions out)
func IsValidEventTransition(current, next EventStatus) bool {
	if current != EventPending {
		return false
	}
	return next == EventExecuted || next == EventDismissed || next == EventExpired
}
