// Package storage 提供基于文件系统的文档存储实现
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"z-bid-doc-api/internal/domain/repository"
	apperrors "z-bid-doc-api/pkg/errors"
	"z-bid-doc-api/pkg/logger"
)

var tracer = otel.Tracer("storage")

// 目录与文件布局
const (
	inputDirName   = "inputs"
	outputDirName  = "outputs"
	outlineDirName = "outline"

	techFileName    = "tech.md"
	scoreFileName   = "score.md"
	outlineJSONName = "outline.json"
	outlineMDName   = "outline.md"
	contentFileName = "content.md"
)

// FileStore 文件系统文档存储
type FileStore struct {
	baseDir string
}

var _ repository.DocumentStore = (*FileStore)(nil)

// NewFileStore 创建文件存储并确保目录结构存在
func NewFileStore(baseDir string) (*FileStore, error) {
	dirs := []string{
		filepath.Join(baseDir, inputDirName),
		filepath.Join(baseDir, outputDirName),
		filepath.Join(baseDir, outputDirName, outlineDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &FileStore{baseDir: baseDir}, nil
}

// LoadInputs 加载技术要求与评分标准
func (s *FileStore) LoadInputs(ctx context.Context) (*repository.InputDocuments, error) {
	ctx, span := tracer.Start(ctx, "storage.LoadInputs")
	defer span.End()

	tech, err := s.readInput(ctx, techFileName)
	if err != nil {
		return nil, err
	}
	score, err := s.readInput(ctx, scoreFileName)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "input documents loaded",
		"tech_chars", len([]rune(tech)),
		"score_chars", len([]rune(score)),
	)
	return &repository.InputDocuments{Tech: tech, Score: score}, nil
}

// readInput 读取单个输入文件，缺失或为空立即失败
func (s *FileStore) readInput(ctx context.Context, name string) (string, error) {
	path := filepath.Join(s.baseDir, inputDirName, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Error(ctx, "input document not found", err, "path", path)
			return "", apperrors.New(apperrors.CodeInputMissing, "input document not found").WithDetail(path)
		}
		return "", apperrors.Wrap(err, apperrors.CodeStorageError, "failed to read input document")
	}
	if strings.TrimSpace(string(data)) == "" {
		logger.Error(ctx, "input document is empty", nil, "path", path)
		return "", apperrors.New(apperrors.CodeInputEmpty, "input document is empty").WithDetail(path)
	}
	return string(data), nil
}

// SaveOutline 持久化大纲 JSON 与 Markdown
func (s *FileStore) SaveOutline(ctx context.Context, outlineJSON []byte, markdown string) error {
	ctx, span := tracer.Start(ctx, "storage.SaveOutline")
	defer span.End()

	jsonPath := filepath.Join(s.baseDir, outputDirName, outlineDirName, outlineJSONName)
	if err := os.WriteFile(jsonPath, outlineJSON, 0o644); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to save outline json")
	}

	mdPath := filepath.Join(s.baseDir, outputDirName, outlineDirName, outlineMDName)
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to save outline markdown")
	}

	logger.Info(ctx, "outline saved", "json", jsonPath, "markdown", mdPath)
	return nil
}

// LoadOutlineJSON 读取已保存的大纲
func (s *FileStore) LoadOutlineJSON(ctx context.Context) ([]byte, error) {
	_, span := tracer.Start(ctx, "storage.LoadOutlineJSON")
	defer span.End()

	path := filepath.Join(s.baseDir, outputDirName, outlineDirName, outlineJSONName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodeOutlineNotFound, "outline not found").WithDetail(path)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to read outline")
	}
	return data, nil
}

// SaveContent 持久化最终文档
func (s *FileStore) SaveContent(ctx context.Context, markdown string) error {
	ctx, span := tracer.Start(ctx, "storage.SaveContent")
	span.SetAttributes(attribute.Int("content.bytes", len(markdown)))
	defer span.End()

	path := filepath.Join(s.baseDir, outputDirName, contentFileName)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to save content")
	}

	logger.Info(ctx, "content saved", "path", path, "bytes", len(markdown))
	return nil
}

// LoadContent 读取已生成的最终文档
func (s *FileStore) LoadContent(ctx context.Context) (string, error) {
	_, span := tracer.Start(ctx, "storage.LoadContent")
	defer span.End()

	path := filepath.Join(s.baseDir, outputDirName, contentFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.CodeContentNotFound, "generated content not found").WithDetail(path)
		}
		return "", apperrors.Wrap(err, apperrors.CodeStorageError, "failed to read content")
	}
	return string(data), nil
}

// HealthCheck 检查存储目录可访问
func (s *FileStore) HealthCheck(ctx context.Context) error {
	_, span := tracer.Start(ctx, "storage.HealthCheck")
	defer span.End()

	info, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("storage dir inaccessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path is not a directory: %s", s.baseDir)
	}
	return nil
}
