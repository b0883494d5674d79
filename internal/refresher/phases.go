package refresher

import "fmt"

// Phase is the refresher's position in a refresh cycle.
//
// Valid phase graph:
//
//	IDLE ──► CHECKING ──► DOWNLOADING ──► BUILDING ──► SWAPPING ──► IDLE
//	             │                            ▲
//	             └──── local copy current ────┘
//
// Every phase may fall back to IDLE when the cycle ends early or fails.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseChecking    Phase = "CHECKING"
	PhaseDownloading Phase = "DOWNLOADING"
	PhaseBuilding    Phase = "BUILDING"
	PhaseSwapping    Phase = "SWAPPING"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Phase][]Phase{
	PhaseIdle:        {PhaseChecking},
	PhaseChecking:    {PhaseDownloading, PhaseBuilding, PhaseIdle},
	PhaseDownloading: {PhaseBuilding, PhaseIdle},
	PhaseBuilding:    {PhaseSwapping, PhaseIdle},
	PhaseSwapping:    {PhaseIdle},
}

// ParsePhase converts a raw string to a Phase, returning an error for
// unknown values.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	switch p {
	case PhaseIdle, PhaseChecking, PhaseDownloading, PhaseBuilding, PhaseSwapping:
		return p, nil
	}
	return "", fmt.Errorf("unknown refresh phase %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// IsBusy reports whether a refresh cycle is in progress.
func IsBusy(p Phase) bool { return p != PhaseIdle }
