package event

import "time"

// Stream identifies where an output line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem carries synthetic status lines such as process-exit
	// notices.
	StreamSystem Stream = "system"
	// StreamError carries reports forwarded from the error queue.
	StreamError Stream = "error"
)

// Kind discriminates the payload carried by an Event.
type Kind int

const (
	KindOutput Kind = iota
	KindCall
	KindReturn
	KindException
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindCall:
		return "call"
	case KindReturn:
		return "return"
	case KindException:
		return "exception"
	default:
		return "unknown"
	}
}

// Call records one observed function invocation. Immutable once recorded.
type Call struct {
	FunctionName string            `json:"function_name"`
	Filename     string            `json:"filename"`
	LineNo       int               `json:"line_no"`
	Args         map[string]string `json:"args,omitempty"`
	CallID       int               `json:"call_id"`
	// ParentID is the id of the innermost call that had been entered but
	// not yet returned when this call was recorded. Zero means a root call.
	ParentID  int       `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Return records a function's return value. CallID is zero when the source
// of the return did not identify the matching call.
type Return struct {
	FunctionName string    `json:"function_name"`
	ReturnValue  string    `json:"return_value"`
	CallID       int       `json:"call_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Exception records an error together with its dynamic type and a formatted
// stack trace.
type Exception struct {
	ExceptionType string    `json:"exception_type"`
	Message       string    `json:"message"`
	Traceback     []string  `json:"traceback"`
	Timestamp     time.Time `json:"timestamp"`
}

// OutputLine is one line captured from the child's pipes or synthesized by
// the dashboard itself.
type OutputLine struct {
	Content   string    `json:"content"`
	Stream    Stream    `json:"stream"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the tagged union delivered on the store's notification channel.
// Exactly one payload pointer is non-nil and matches Kind.
type Event struct {
	Kind      Kind
	Output    *OutputLine
	Call      *Call
	Return    *Return
	Exception *Exception
}

// Counts reports the size of each collection at one point in time.
type Counts struct {
	Output     int `json:"output"`
	Calls      int `json:"calls"`
	Returns    int `json:"returns"`
	Exceptions int `json:"exceptions"`
}
