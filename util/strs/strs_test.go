package strs

import "testing"

func TestSnakeToCamel(t *testing.T) {
	cases := map[string]string{
		"say_hello":   "SayHello",
		"sayHello":    "SayHello",
		"SayHello":    "SayHello",
		"stream_echo": "StreamEcho",
		"a__b":        "AB",
		"":            "",
	}
	for in, want := range cases {
		if got := SnakeToCamel(in); got != want {
			t.Errorf("SnakeToCamel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCamelToSnake(t *testing.T) {
	cases := map[string]string{
		"SayHello":   "say_hello",
		"UserID":     "user_id",
		"HTTPServer": "http_server",
		"Name":       "name",
		"already_ok": "already_ok",
		"Field2Name": "field2_name",
	}
	for in, want := range cases {
		if got := CamelToSnake(in); got != want {
			t.Errorf("CamelToSnake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStem(t *testing.T) {
	if got := FileStem("protos/fast_grpc.proto"); got != "fast_grpc" {
		t.Fatalf("FileStem = %q", got)
	}
	if got := FileStem("greeter"); got != "greeter" {
		t.Fatalf("FileStem = %q", got)
	}
}
