package strs

import (
	"strings"
	"unicode"
)

// 首字母大写
func UpperFirst(str string) string {
	if len(str) == 0 {
		return ""
	}
	return strings.ToUpper(str[:1]) + str[1:]
}

// SnakeToCamel 按 '_' 切分, 每段首字母大写, 其余保持不变
//
//	say_hello -> SayHello, sayHello -> SayHello, HTTP_proxy -> HTTPProxy
func SnakeToCamel(str string) string {
	parts := strings.Split(str, "_")
	var b strings.Builder
	b.Grow(len(str))
	for _, p := range parts {
		b.WriteString(UpperFirst(p))
	}
	return b.String()
}

// CamelToSnake SayHello -> say_hello, HTTPServer -> http_server
func CamelToSnake(str string) string {
	rs := []rune(str)
	var b strings.Builder
	b.Grow(len(str) + 4)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && rs[i-1] != '_' {
				prevLower := unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1])
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if prevLower || (nextLower && unicode.IsUpper(rs[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FileStem a/b/fast_grpc.proto -> fast_grpc
func FileStem(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i > 0 {
		path = path[:i]
	}
	return path
}
