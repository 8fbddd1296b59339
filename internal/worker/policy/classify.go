package policy

import (
	"errors"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
)

// Classify turns the results of the fetch and transform steps into an Outcome.
// Structural failures are terminal; everything else, including errors nobody
// anticipated, is treated as transient.
func Classify(fetchErr, transformErr error) domain.Outcome {
	err := fetchErr
	if err == nil {
		err = transformErr
	}
	if err == nil {
		return domain.Success()
	}

	switch {
	case errors.Is(err, domain.ErrNotAnImage),
		errors.Is(err, domain.ErrDecodeFailed),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrTooLarge),
		errors.Is(err, domain.ErrInvalidPayload):
		return domain.TerminalFailure(err)
	default:
		return domain.RetryableFailure(err)
	}
}
