package wire

import "fmt"

// UnexpectedError reports malformed input: what the decoder wanted, what it
// actually saw, and the byte offset it had reached. It covers truncation,
// bad signatures, out-of-range tag bytes and header validation failures
// alike, so the message can be shown to a human verbatim.
type UnexpectedError struct {
	Offset   int64
	Expected string
	Got      string
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("byte %d: expected %s, got %s", e.Offset, e.Expected, e.Got)
}

// ReadError wraps a failure of the underlying source, as opposed to
// malformed bytes. Unwraps to the original I/O error.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("byte %d: read source: %v", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
