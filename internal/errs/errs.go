package errs

import (
	"errors"
	"fmt"
)

// 错误种类，调用方用 errors.Is 判断
var (
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrInvalidState         = errors.New("invalid state")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNotFound             = errors.New("not found")
	ErrInvalidQuery         = errors.New("invalid query")
)

// Error 给错误种类附加上下文信息
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind error, message string) *Error {
	return &Error{
		Err:     kind,
		Message: message,
	}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{
		Err:     kind,
		Message: fmt.Sprintf(format, args...),
	}
}
