package errs

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus 将调用过程中的错误转换为grpc status error
//   - 已经是status的原样返回
//   - ValidationError -> InvalidArgument, 附带 BadRequest 字段详情
//   - context取消/超时 -> Canceled/DeadlineExceeded
//   - 其余 -> Internal
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return validationStatus(verr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	var cerr CodeError
	if errors.As(err, &cerr) {
		switch cerr.Code() {
		case ErrCode_Unmarshal, ErrCode_Validation:
			return status.Error(codes.InvalidArgument, cerr.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func validationStatus(verr *ValidationError) error {
	st := status.New(codes.InvalidArgument, verr.Error())
	br := &errdetails.BadRequest{}
	for _, v := range verr.Violations {
		br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
			Field:       v.Field,
			Description: v.Reason,
		})
	}
	if ds, err := st.WithDetails(br); err == nil {
		st = ds
	}
	return st.Err()
}

// FieldViolations 从status error中取出BadRequest字段详情, 客户端使用
func FieldViolations(err error) []Violation {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var out []Violation
	for _, d := range st.Details() {
		if br, ok := d.(*errdetails.BadRequest); ok {
			for _, fv := range br.GetFieldViolations() {
				out = append(out, Violation{Field: fv.GetField(), Reason: fv.GetDescription()})
			}
		}
	}
	return out
}
