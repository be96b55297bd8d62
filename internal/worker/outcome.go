package worker

// OutcomeKind classifies the result of processing one message. The retry
// coordinator branches on this data instead of on raised errors.
type OutcomeKind int

const (
	// Success terminates the message: commit its offset.
	Success OutcomeKind = iota
	// RetryableFailure means infrastructure misbehaved; the message is
	// republished on the retry path with an incremented attempt.
	RetryableFailure
	// PermanentFailure means processing itself rejected the content.
	// It still takes the bounded retry path before dead-lettering.
	PermanentFailure
)

type Outcome struct {
	Kind OutcomeKind
	Err  error
}

func succeeded() Outcome {
	return Outcome{Kind: Success}
}

func retryable(err error) Outcome {
	return Outcome{Kind: RetryableFailure, Err: err}
}

func permanent(err error) Outcome {
	return Outcome{Kind: PermanentFailure, Err: err}
}
