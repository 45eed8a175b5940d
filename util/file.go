package util

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirMode  os.FileMode = 0755
	defaultFileMode os.FileMode = 0644
)

// EnsureDir 创建文件所在目录
func EnsureDir(fullpath string) error {
	fullpath = strings.ReplaceAll(fullpath, "\\", "/")
	dir := filepath.Dir(fullpath)
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return os.MkdirAll(dir, defaultDirMode)
	}
	return nil
}

// WriteFileIfChanged 内容不变时不写, 避免生成文件的mtime变化触发重新编译; 返回是否写入
func WriteFileIfChanged(fullpath string, data []byte) (bool, error) {
	old, err := os.ReadFile(fullpath)
	if err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := EnsureDir(fullpath); err != nil {
		return false, err
	}
	if err := os.WriteFile(fullpath, data, defaultFileMode); err != nil {
		return false, err
	}
	return true, nil
}
