// Package bidding 实现投标文件生成的端到端工作流
package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"z-bid-doc-api/internal/application/generation"
	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/domain/outline"
	"z-bid-doc-api/internal/domain/repository"
	"z-bid-doc-api/internal/infrastructure/llm"
	"z-bid-doc-api/internal/prompt"
	apperrors "z-bid-doc-api/pkg/errors"
	"z-bid-doc-api/pkg/logger"
	"z-bid-doc-api/pkg/metrics"
)

var tracer = otel.Tracer("bidding")

// Workflow 一次生成运行。
// 每个 HTTP 请求实例化一个新的 Workflow，独占自己的 LLM 客户端与运行状态，
// 运行结束后即丢弃，不跨请求复用。调用方必须在所有退出路径上调用 Close。
type Workflow struct {
	cfg     *config.Config
	store   repository.DocumentStore
	prompts *prompt.Registry
	client  *llm.Client
	runID   string
}

// DocumentStats 文档生成运行的结果统计
type DocumentStats struct {
	Sections int
	Failed   int
	Elapsed  time.Duration
}

// NewWorkflow 创建一次生成运行
func NewWorkflow(cfg *config.Config, store repository.DocumentStore, prompts *prompt.Registry) *Workflow {
	return &Workflow{
		cfg:     cfg,
		store:   store,
		prompts: prompts,
		client:  llm.NewClient(&cfg.LLM),
		runID:   uuid.New().String(),
	}
}

// RunID 返回本次运行的标识
func (w *Workflow) RunID() string {
	return w.runID
}

// Close 释放运行持有的网络会话。幂等。
func (w *Workflow) Close() {
	w.client.Close()
}

// GenerateOutline 加载输入资料，通过三轮对话生成大纲，解析校验后持久化。
// 返回解析后的大纲及其规范 JSON 文本。
func (w *Workflow) GenerateOutline(ctx context.Context) (*outline.Outline, []byte, error) {
	ctx = logger.WithContext(ctx, logger.RunIDKey, w.runID)
	ctx, span := tracer.Start(ctx, "bidding.GenerateOutline")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues("outline").Observe(time.Since(start).Seconds())
	}()

	logger.Info(ctx, "outline generation started")

	inputs, err := w.store.LoadInputs(ctx)
	if err != nil {
		return nil, nil, err
	}

	messages, err := w.outlineMessages(inputs)
	if err != nil {
		return nil, nil, err
	}

	raw, err := w.client.Call(ctx, messages, true)
	if err != nil {
		logger.Error(ctx, "outline generation call failed", err)
		return nil, nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "failed to generate outline")
	}

	o, err := outline.Parse([]byte(raw))
	if err != nil {
		logger.Error(ctx, "generated outline is malformed", err, "payload", raw)
		return nil, nil, apperrors.Wrap(err, apperrors.CodeOutlineInvalid, "generated outline is malformed")
	}

	outlineJSON, err := o.MarshalIndent()
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to serialize outline")
	}
	if err := w.store.SaveOutline(ctx, outlineJSON, o.Markdown()); err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "outline generated",
		"chapters", len(o.Chapters),
		"sections", o.CountLeaves(),
		"elapsed", time.Since(start).String(),
	)
	return o, outlineJSON, nil
}

// outlineMessages 构造大纲生成的三轮对话
func (w *Workflow) outlineMessages(inputs *repository.InputDocuments) ([]llm.Message, error) {
	system, err := w.prompts.Text(prompt.OutlineSystemV1)
	if err != nil {
		return nil, err
	}
	techTurn, err := w.prompts.Render(prompt.OutlineTechV1, map[string]string{"tech_content": inputs.Tech})
	if err != nil {
		return nil, err
	}
	scoreTurn, err := w.prompts.Render(prompt.OutlineScoreV1, map[string]string{"score_content": inputs.Score})
	if err != nil {
		return nil, err
	}
	generateTurn, err := w.prompts.Text(prompt.OutlineGenerateV1)
	if err != nil {
		return nil, err
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: techTurn},
		{Role: llm.RoleUser, Content: scoreTurn},
		{Role: llm.RoleUser, Content: generateTurn},
	}, nil
}

// GenerateDocument 读取已保存的大纲，受限并发生成全部小节并装配持久化。
// 单个小节失败只产生占位文本，运行总是产出结构完整的文档。
func (w *Workflow) GenerateDocument(ctx context.Context) (*DocumentStats, error) {
	ctx = logger.WithContext(ctx, logger.RunIDKey, w.runID)
	ctx, span := tracer.Start(ctx, "bidding.GenerateDocument")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RunDuration.WithLabelValues("content").Observe(time.Since(start).Seconds())
	}()

	data, err := w.store.LoadOutlineJSON(ctx)
	if err != nil {
		return nil, err
	}
	o, err := outline.Parse(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOutlineInvalid, "saved outline is malformed")
	}

	tasks := generation.TasksFrom(o)
	span.SetAttributes(attribute.Int("bidding.sections", len(tasks)))
	logger.Info(ctx, "document generation started", "sections", len(tasks))

	scheduler := generation.NewScheduler(w, w.cfg.Generation)
	results := scheduler.Run(ctx, tasks)

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}

	document := o.Markdown() + "\n\n" + generation.Assemble(results)
	if err := w.store.SaveContent(ctx, document); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logger.Info(ctx, "document generation finished",
		"sections", len(results),
		"failed", failed,
		"elapsed", elapsed.String(),
	)
	return &DocumentStats{Sections: len(results), Failed: failed, Elapsed: elapsed}, nil
}

// WriteSection 为单个小节生成正文，实现 generation.SectionWriter
func (w *Workflow) WriteSection(ctx context.Context, task generation.LeafTask) (string, error) {
	system, err := w.prompts.Text(prompt.ContentSystemV1)
	if err != nil {
		return "", err
	}
	userTurn, err := w.prompts.Render(prompt.ContentSectionV1, map[string]string{
		"title":           task.Title,
		"content_summary": task.ContentSummary,
	})
	if err != nil {
		return "", err
	}

	content, err := w.client.Call(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: userTurn},
	}, false)
	if err != nil {
		return "", fmt.Errorf("write section %q: %w", task.Title, err)
	}
	return content, nil
}
