package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protos", "fast_grpc.proto")

	written, err := WriteFileIfChanged(path, []byte("a"))
	if err != nil || !written {
		t.Fatalf("first write = %v, %v", written, err)
	}
	st1, _ := os.Stat(path)
	time.Sleep(10 * time.Millisecond)

	written, err = WriteFileIfChanged(path, []byte("a"))
	if err != nil || written {
		t.Fatalf("unchanged write = %v, %v", written, err)
	}
	st2, _ := os.Stat(path)
	if !st1.ModTime().Equal(st2.ModTime()) {
		t.Fatalf("mtime changed for identical content")
	}

	written, err = WriteFileIfChanged(path, []byte("b"))
	if err != nil || !written {
		t.Fatalf("changed write = %v, %v", written, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "b" {
		t.Fatalf("content = %q", data)
	}
}
