// Package repository 定义领域层的存储接口
package repository

import (
	"context"
)

// InputDocuments 一次生成运行的两份输入资料
type InputDocuments struct {
	Tech  string
	Score string
}

// DocumentStore 投标文件产物的存取接口。
// 产物格式：大纲同时以嵌套 JSON 和镜像 Markdown 持久化，
// 最终文档为单个 Markdown 文件。
type DocumentStore interface {
	// LoadInputs 加载技术要求与评分标准，文件缺失或为空时立即失败
	LoadInputs(ctx context.Context) (*InputDocuments, error)

	// SaveOutline 持久化大纲的 JSON 与 Markdown 两种形态
	SaveOutline(ctx context.Context, outlineJSON []byte, markdown string) error

	// LoadOutlineJSON 读取已保存的大纲 JSON
	LoadOutlineJSON(ctx context.Context) ([]byte, error)

	// SaveContent 持久化装配后的最终文档
	SaveContent(ctx context.Context, markdown string) error

	// LoadContent 读取已生成的最终文档
	LoadContent(ctx context.Context) (string, error)
}
