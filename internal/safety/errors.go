package safety

import "fmt"

// RuntimeError is returned when a system command cannot be located or fails
type RuntimeError struct {
	Command string
	msg     string
	Err     error
}

func NewRuntimeError(command, msg string, err error) *RuntimeError {
	return &RuntimeError{Command: command, msg: msg, Err: err}
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Command, e.msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
