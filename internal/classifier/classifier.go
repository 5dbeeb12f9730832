// Package classifier implements the retry classifier (C4): it maps a raw
// image-API outcome, plus the subtask's current retry count, to one of a
// small set of typed classifications and the store mutation each implies.
package classifier

import "fmt"

// Kind is the outcome of an image-API call as surfaced to the classifier.
type Kind int

const (
	// KindSuccess means the call returned a usable result.
	KindSuccess Kind = iota
	// KindTimeout covers poll exhaustion and an explicit TIMEOUT status.
	KindTimeout
	// KindIllegalContent covers HTTP 451 and task_status == "ILLEGAL_IMAGE".
	KindIllegalContent
	// KindGenericFailure covers FAILURE status, transport errors and
	// unrecognised response shapes.
	KindGenericFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindIllegalContent:
		return "illegal_content"
	case KindGenericFailure:
		return "generic_failure"
	default:
		return "unknown"
	}
}

// Outcome is what a completed image-API attempt reports to the classifier.
type Outcome struct {
	Kind Kind
	Err  error
}

func (o Outcome) Error() string {
	if o.Err == nil {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

// Action is what the classifier tells the dispatcher/store to do next.
type Action int

const (
	// ActionComplete means write the result and mark the subtask completed.
	ActionComplete Action = iota
	// ActionRetryImmediate means bump retry_count, mark processing, and
	// resubmit with no delay (timeout path, retry_count < MaxTimeoutRetries-1).
	ActionRetryImmediate
	// ActionRetryBackoff means bump retry_count, mark processing, sleep
	// the generic backoff duration, then resubmit (retry_count < MaxGenericRetries-1).
	ActionRetryBackoff
	// ActionFail means mark the subtask failed terminally, no further retry.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionRetryImmediate:
		return "retry_immediate"
	case ActionRetryBackoff:
		return "retry_backoff"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MaxTimeoutRetries and MaxGenericRetries are the retry ceilings from the
// policy table, counted in attempts including the first: a timeout path
// gets at most 5 attempts with immediate retries, any other error at most 2
// attempts with a fixed backoff between them.
const (
	MaxTimeoutRetries = 5
	MaxGenericRetries = 2
)

// GenericBackoffSeconds is the fixed sleep between generic-failure retries.
// The source uses a flat delay here, not exponential backoff - the pool
// is already the thing absorbing load, the delay just avoids a hot loop
// against a backend that just errored.
const GenericBackoffSeconds = 3

// Classify applies the policy table in §4.4 strictly in the order given
// there: terminal-content first, then timeout, then everything else.
func Classify(o Outcome, retryCount int) Action {
	switch o.Kind {
	case KindIllegalContent:
		return ActionFail
	case KindTimeout:
		// -1 because the attempt that just failed counts as one of the five.
		if retryCount < MaxTimeoutRetries-1 {
			return ActionRetryImmediate
		}
		return ActionFail
	case KindSuccess:
		return ActionComplete
	default: // KindGenericFailure and anything unrecognised
		// -1 because the attempt that just failed counts as one of the two.
		if retryCount < MaxGenericRetries-1 {
			return ActionRetryBackoff
		}
		return ActionFail
	}
}
