package policy

import "github.com/cuongbtq/image-worker/internal/worker/domain"

// Decide maps an outcome and the delivery count to a queue action.
// A retryable job is released while deliveryCount <= maxAttempts, so with the
// default of 11 the 11th delivery is still released and the 12th is dead-lettered.
func Decide(outcome domain.Outcome, deliveryCount, maxAttempts int) domain.Decision {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		return domain.DecisionAcknowledge
	case domain.OutcomeTerminal:
		return domain.DecisionDeadLetter
	case domain.OutcomeRetryable:
		if deliveryCount <= maxAttempts {
			return domain.DecisionRelease
		}
		return domain.DecisionDeadLetter
	default:
		return domain.DecisionRelease
	}
}
