package errs

import (
	"errors"
	"fmt"
	"strings"
)

type CodeError interface {
	error
	Code() int32
	Print(extras ...string) CodeError
	Printf(format string, args ...any) CodeError
	Is(error) bool
}

func CreateCodeError(code int32, desc string) CodeError {
	return &codeError{
		Errno: code, //  错误码数字
		Desc:  desc, //  错误描述字符串, 如：CONFIGURATION、UNKNOWN
	}
}

// WrapError 非CodeError包装为Unknown，保留原始error用于errors.Unwrap
func WrapError(err error) CodeError {
	if err == nil {
		return nil
	}
	var x CodeError
	if errors.As(err, &x) {
		return x
	}
	return &codeError{Errno: ErrCode_Unknown, Desc: err.Error(), cause: err}
}

type codeError struct {
	Errno int32
	Desc  string
	cause error
}

func (e *codeError) Code() int32 {
	return e.Errno
}

func (e *codeError) Error() string {
	return e.Desc
}

func (e *codeError) Unwrap() error {
	return e.cause
}

func (e *codeError) String() string {
	return fmt.Sprintf("errno: %d, desc: %s", e.Errno, e.Desc)
}

func (e *codeError) Print(extras ...string) CodeError {
	if len(extras) == 0 {
		return e
	}
	builder := strings.Builder{}
	builder.WriteString(e.Desc)
	for _, extra := range extras {
		builder.WriteByte(',')
		builder.WriteString(extra)
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  builder.String(),
	}
}

func (e *codeError) Printf(format string, args ...any) CodeError {
	if len(format) == 0 {
		return e
	}
	// %w 的参数保留为cause
	var cause error
	for _, arg := range args {
		if err, ok := arg.(error); ok && strings.Contains(format, "%w") {
			cause = err
			break
		}
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  e.Desc + ": " + fmt.Errorf(format, args...).Error(),
		cause: cause,
	}
}

func (e *codeError) Is(target error) bool {
	if x, ok := target.(CodeError); ok {
		return x.Code() == e.Errno
	}
	return false
}

// IsCode 判断err链上是否有指定错误码
func IsCode(err error, code int32) bool {
	var x CodeError
	if errors.As(err, &x) {
		return x.Code() == code
	}
	return false
}
