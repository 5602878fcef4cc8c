package pipeline

// State is an item's position in the pipeline. States only move forward
// along the success chain, or sideways into failed or skipped. Terminal
// states never change.
type State string

const (
	StatePending    State = "pending"
	StateResolving  State = "resolving"
	StateResolved   State = "resolved"
	StateFetching   State = "fetching"
	StateFetched    State = "fetched"
	StateBuilding   State = "building"
	StateBuilt      State = "built"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// stateOrder positions each success-chain state. Failed and skipped sit
// outside the chain and are reachable from any non-terminal state.
var stateOrder = map[State]int{
	StatePending:    0,
	StateResolving:  1,
	StateResolved:   2,
	StateFetching:   3,
	StateFetched:    4,
	StateBuilding:   5,
	StateBuilt:      6,
	StateInstalling: 7,
	StateInstalled:  8,
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	if _, ok := stateOrder[s]; ok {
		return true
	}
	return s == StateFailed || s == StateSkipped
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateInstalled, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

// canAdvance reports whether moving from s to chain state "to" is a strictly
// forward move. Skipping intermediate states is allowed; the observed
// sequence of any item stays a subsequence of the canonical order.
func canAdvance(from, to State) bool {
	fi, ok := stateOrder[from]
	if !ok {
		return false
	}
	ti, ok := stateOrder[to]
	if !ok {
		return false
	}
	return ti > fi
}

// Stage names one pipeline phase. Each stage owns an active state (entered
// at dispatch) and a done state (entered on success).
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StageBuild   Stage = "build"
	StageInstall Stage = "install"
)

// Active returns the state an item holds while the stage runs on it.
func (s Stage) Active() State {
	switch s {
	case StageResolve:
		return StateResolving
	case StageFetch:
		return StateFetching
	case StageBuild:
		return StateBuilding
	case StageInstall:
		return StateInstalling
	default:
		return ""
	}
}

// Done returns the state an item enters when the stage succeeds on it.
func (s Stage) Done() State {
	switch s {
	case StageResolve:
		return StateResolved
	case StageFetch:
		return StateFetched
	case StageBuild:
		return StateBuilt
	case StageInstall:
		return StateInstalled
	default:
		return ""
	}
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// stageFor maps a state back to the stage it belongs to, or "" for states
// outside any stage.
func stageFor(s State) Stage {
	switch s {
	case StateResolving, StateResolved:
		return StageResolve
	case StateFetching, StateFetched:
		return StageFetch
	case StateBuilding, StateBuilt:
		return StageBuild
	case StateInstalling, StateInstalled:
		return StageInstall
	default:
		return ""
	}
}

// SkipCause explains why an item was skipped without being attempted.
type SkipCause string

const (
	// CauseDependencyFailed marks items abandoned because something they
	// depend on, directly or transitively, failed.
	CauseDependencyFailed SkipCause = "dependency_failed"
	// CauseCanceled marks items abandoned because the run was canceled
	// before they were admitted.
	CauseCanceled SkipCause = "canceled"
)

// String returns the cause name.
func (c SkipCause) String() string {
	return string(c)
}
