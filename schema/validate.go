package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/util/strs"
	"github.com/go-playground/validator/v10"
)

// Validator 模型可自定义的校验
type Validator interface {
	Validate() error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 违规字段使用proto字段名
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name, _ := parseTag(sf.Tag.Get("pb"))
		if name == "" || name == "-" {
			name = strs.CamelToSnake(sf.Name)
		}
		return name
	})
	return v
}

func validateModel(v any) []errs.Violation {
	var out []errs.Violation
	if err := validate.Struct(v); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return []errs.Violation{{Rule: "invalid", Reason: err.Error()}}
		}
		for _, fe := range ves {
			out = append(out, errs.Violation{
				Field:  trimRoot(fe.Namespace()),
				Rule:   fe.Tag(),
				Reason: describe(fe),
			})
		}
	}
	if vv, ok := v.(Validator); ok {
		if err := vv.Validate(); err != nil {
			out = append(out, errs.Violation{Rule: "validate", Reason: err.Error()})
		}
	}
	return out
}

// HelloRequest.user.name -> user.name
func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed on the '%s=%s' rule", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
}
