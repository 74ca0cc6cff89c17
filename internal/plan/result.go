package plan

import "fmt"

type ResultKind int

const (
	ResultCompleted ResultKind = iota
	ResultFailed
	ResultSkipped
)

func (k ResultKind) String() string {
	switch k {
	case ResultCompleted:
		return "completed"
	case ResultFailed:
		return "failed"
	case ResultSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Result is the outcome of one IsSkip or Run call.
type Result struct {
	Kind    ResultKind
	Message string
	Payload any

	err error
}

func Completed(message string) Result {
	return Result{Kind: ResultCompleted, Message: message}
}

func Skipped(message string) Result {
	return Result{Kind: ResultSkipped, Message: message}
}

func Failed(err error) Result {
	if err == nil {
		return Result{Kind: ResultFailed}
	}
	return Result{Kind: ResultFailed, Message: err.Error(), err: err}
}

func Failedf(format string, args ...any) Result {
	return Result{Kind: ResultFailed, Message: fmt.Sprintf(format, args...)}
}

// WithPayload returns a copy of r carrying payload.
func (r Result) WithPayload(payload any) Result {
	r.Payload = payload
	return r
}

// Err returns the error a Failed result was built from, if any.
func (r Result) Err() error { return r.err }

func (r Result) IsFailed() bool  { return r.Kind == ResultFailed }
func (r Result) IsSkipped() bool { return r.Kind == ResultSkipped }
