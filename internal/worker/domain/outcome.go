package domain

// OutcomeKind tags an Outcome
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable_failure"
	case OutcomeTerminal:
		return "terminal_failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one processing attempt
type Outcome struct {
	Kind   OutcomeKind
	Reason error
}

// Success builds a successful outcome
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// RetryableFailure builds an outcome that may succeed on redelivery
func RetryableFailure(reason error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason}
}

// TerminalFailure builds an outcome that redelivery cannot fix
func TerminalFailure(reason error) Outcome {
	return Outcome{Kind: OutcomeTerminal, Reason: reason}
}

// ReasonString returns the failure reason, or an empty string on success
func (o Outcome) ReasonString() string {
	if o.Reason == nil {
		return ""
	}
	return o.Reason.Error()
}

// Decision is the queue action applied to a delivery
type Decision int

const (
	DecisionAcknowledge Decision = iota
	DecisionRelease
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionAcknowledge:
		return "acknowledge"
	case DecisionRelease:
		return "release"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}
