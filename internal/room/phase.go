package room

// Phase is the macro-state of a session. Exactly one phase is active at a
// time and only the edges encoded in canTransition are reachable.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

// canTransition whitelists the legal phase edges:
// waiting→countdown→playing→finished, the countdown abort edge back to
// waiting, and the finished→waiting rematch edge.
func canTransition(from, to Phase) bool {
	switch from {
	case PhaseWaiting:
		return to == PhaseCountdown
	case PhaseCountdown:
		return to == PhasePlaying || to == PhaseWaiting
	case PhasePlaying:
		return to == PhaseFinished
	case PhaseFinished:
		return to == PhaseWaiting
	}
	return false
}
