package membrane

import (
	"errors"

	"github.com/dop251/goja"
)

var (
	// ErrRegistration is returned when a value cannot be bound in the
	// identity map because one side is already bound to something else.
	ErrRegistration = errors.New("membrane: identity registration failed")

	// ErrNotObject is returned by registration calls given a nil object.
	ErrNotObject = errors.New("membrane: value is not an object")
)

// internalErrorMessage is what guest code sees when a wrapper could not be
// registered. It carries no structural detail on purpose.
const internalErrorMessage = "membrane: internal error"

// ThrownError carries a value that a crossing threw in the destination
// realm when the conversion was requested from Go rather than from a trap.
type ThrownError struct {
	Value goja.Value
}

func (e *ThrownError) Error() string {
	if e.Value == nil {
		return "membrane: crossing failed"
	}
	if obj, ok := e.Value.(*goja.Object); ok {
		var msg string
		_ = catch(func() {
			msg, _ = obj.Get("message").Export().(string)
		})
		if msg == "" {
			return "membrane: crossing failed"
		}
		return "membrane: crossing failed: " + msg
	}
	return "membrane: crossing failed: " + e.Value.String()
}
