package controller

// State is the visible state of the inspection workflow
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateAnalyzing    State = "analyzing"
	StateResultsShown State = "results_shown"
	// StateError is transient: a failed submission passes through it and
	// lands back in the state it started from.
	StateError State = "error"
)

// SubmissionEnabled is false only while idle or analyzing
func (s State) SubmissionEnabled() bool {
	return s != StateIdle && s != StateAnalyzing
}

func (s State) String() string {
	return string(s)
}
