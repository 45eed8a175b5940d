package errs

import (
	"fmt"
	"strings"
)

// Violation 单个字段的校验失败信息
type Violation struct {
	Field  string // protobuf字段路径, 如 user.name
	Rule   string // 规则名, 如 required、overflow
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// ValidationError 请求解码或响应编码时模型校验失败, 只影响当前调用
type ValidationError struct {
	Message    string // 消息名
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s: invalid %s: %s", Validation.Error(), e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Code() int32 {
	return ErrCode_Validation
}

func (e *ValidationError) Print(extras ...string) CodeError {
	return CreateCodeError(ErrCode_Validation, e.Error()).Print(extras...)
}

func (e *ValidationError) Printf(format string, args ...any) CodeError {
	return CreateCodeError(ErrCode_Validation, e.Error()).Printf(format, args...)
}

func (e *ValidationError) Is(target error) bool {
	if x, ok := target.(CodeError); ok {
		return x.Code() == ErrCode_Validation
	}
	return false
}
