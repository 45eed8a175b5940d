package middleware

import (
	"fmt"
	"reflect"
)

// sprintModel 单行输出模型, 指针解引用一层
func sprintModel(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "<nil>"
		}
		return fmt.Sprintf("%+v", rv.Elem().Interface())
	}
	return fmt.Sprintf("%+v", v)
}
