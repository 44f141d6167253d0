package engine

import (
	stderrors "errors"

	"github.com/dop251/goja"
)

// ErrNotCallable is returned by Call when the target value is not a function.
var ErrNotCallable = stderrors.New("target is not callable")

// FormatException renders an error returned by Evaluate, Call or Construct.
// Script exceptions include the script stack trace; other errors fall back
// to their plain message.
func FormatException(err error) string {
	if err == nil {
		return ""
	}
	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		return ex.String()
	}
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		return interrupted.String()
	}
	var overflow *goja.StackOverflowError
	if stderrors.As(err, &overflow) {
		return overflow.String()
	}
	return err.Error()
}

// IsException reports whether err carries a thrown script value, as opposed
// to a host-side failure such as an interrupt.
func IsException(err error) bool {
	var ex *goja.Exception
	return stderrors.As(err, &ex)
}
