package services

const neutralScore = 50.0

// SignalResult is the outcome of one signal calculator. Exactly one of the
// three states applies: a computed score, a declared data shortfall, or a
// calculation failure. Downstream consumers resolve every state to a score
// so a single bad input can never abort a full run.
type SignalResult struct {
	state     signalState
	score     float64
	rationale string
	reason    string
}

type signalState int

const (
	signalComputed signalState = iota
	signalInsufficient
	signalFailed
)

// ComputedSignal reports a successfully calculated score with its rationale.
func ComputedSignal(score float64, rationale string) SignalResult {
	return SignalResult{state: signalComputed, score: score, rationale: rationale}
}

// InsufficientSignal reports that the inputs were too short or too sparse to
// compute anything meaningful.
func InsufficientSignal(reason string) SignalResult {
	return SignalResult{state: signalInsufficient, reason: reason}
}

// FailedSignal reports a calculation error, such as a model that would not fit.
func FailedSignal(reason string) SignalResult {
	return SignalResult{state: signalFailed, reason: reason}
}

// Resolve collapses the result into a usable score and explanation. The
// insufficient and failed states both resolve to the neutral score of 50 so
// they neither push nor drag the composite; their reason becomes the
// rationale.
func (r SignalResult) Resolve() (float64, string) {
	if r.state == signalComputed {
		return r.score, r.rationale
	}
	return neutralScore, r.reason
}

// Computed reports whether the calculator produced a real score.
func (r SignalResult) Computed() bool {
	return r.state == signalComputed
}

// Failed reports whether the calculator errored out.
func (r SignalResult) Failed() bool {
	return r.state == signalFailed
}

// FailureReason returns the reason for a failed or insufficient result, or
// an empty string for a computed one.
func (r SignalResult) FailureReason() string {
	if r.state == signalComputed {
		return ""
	}
	return r.reason
}
