package protogen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/fixkme/fastgrpc/util"
)

// Document 生成的一个proto文件
type Document struct {
	Path     string   `bson:"_id" json:"path"`
	Package  string   `bson:"package" json:"package"`
	Services []string `bson:"services" json:"services"`
	Content  string   `bson:"content" json:"content"`
	Digest   string   `bson:"digest" json:"digest"`
}

func NewDocument(path, pkg string, services []string, content string) *Document {
	sum := sha256.Sum256([]byte(content))
	return &Document{
		Path:     path,
		Package:  pkg,
		Services: services,
		Content:  content,
		Digest:   hex.EncodeToString(sum[:]),
	}
}

// Publisher 把生成的proto发布到外部存储, 供其他语言的客户端获取
type Publisher interface {
	Publish(ctx context.Context, doc *Document) error
}

type PublisherFunc func(ctx context.Context, doc *Document) error

func (f PublisherFunc) Publish(ctx context.Context, doc *Document) error {
	return f(ctx, doc)
}

// WriteFile 写到dir下, 内容未变时不写; 返回是否写入
func WriteFile(dir string, doc *Document) (bool, error) {
	return util.WriteFileIfChanged(filepath.Join(dir, doc.Path), []byte(doc.Content))
}
