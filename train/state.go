package train

// State ist der Zustand eines Trainers
type State int

const (
	Initialized State = iota
	Training
	Converged
	StepLimitReached
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Training:
		return "training"
	case Converged:
		return "converged"
	case StepLimitReached:
		return "step_limit_reached"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done meldet einen Endzustand
func (s State) Done() bool {
	return s == Converged || s == StepLimitReached || s == Failed
}
