package protogen

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/fixkme/fastgrpc/errs"
)

// Compiler 调用protoc生成go代码
type Compiler struct {
	Protoc       string   // 默认 protoc
	IncludePaths []string // 默认 .
	GoOut        string
	GoGRPCOut    string
	GoOpts       []string // 如 paths=source_relative
}

// Args protoc的参数, 不含可执行文件
func (c *Compiler) Args(files ...string) []string {
	var args []string
	includes := c.IncludePaths
	if len(includes) == 0 {
		includes = []string{"."}
	}
	for _, inc := range includes {
		args = append(args, "--proto_path="+inc)
	}
	if c.GoOut != "" {
		args = append(args, "--go_out="+c.GoOut)
		for _, opt := range c.GoOpts {
			args = append(args, "--go_opt="+opt)
		}
	}
	if c.GoGRPCOut != "" {
		args = append(args, "--go-grpc_out="+c.GoGRPCOut)
		for _, opt := range c.GoOpts {
			args = append(args, "--go-grpc_opt="+opt)
		}
	}
	return append(args, files...)
}

func (c *Compiler) Compile(ctx context.Context, files ...string) error {
	protoc := c.Protoc
	if protoc == "" {
		protoc = "protoc"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, protoc, c.Args(files...)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errs.Configuration.Printf("%s %s: %w: %s", protoc, strings.Join(files, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
