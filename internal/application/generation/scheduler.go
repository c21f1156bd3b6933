package generation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/pkg/logger"
	"z-bid-doc-api/pkg/metrics"
)

var tracer = otel.Tracer("generation")

// SectionWriter 为单个小节生成正文
type SectionWriter interface {
	WriteSection(ctx context.Context, task LeafTask) (string, error)
}

// Scheduler 受限并发的小节生成调度器。
// 按固定批次派发任务，所有批次共享同一个容量为并发上限的准入闸门，
// 即使未来批次大小与并发上限不再相等，在途请求数也不会超过上限。
type Scheduler struct {
	writer SectionWriter
	cfg    config.GenerationConfig
	gate   *semaphore.Weighted
}

// NewScheduler 创建调度器，调度参数由调用方注入
func NewScheduler(writer SectionWriter, cfg config.GenerationConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 15
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	return &Scheduler{
		writer: writer,
		cfg:    cfg,
		gate:   semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Run 为每个任务生成内容。
// 返回的结果与输入任务一一对应且顺序一致，与各任务的完成先后无关；
// 单个任务失败只产生占位结果，不中断批次或整个运行。
func (s *Scheduler) Run(ctx context.Context, tasks []LeafTask) []LeafResult {
	ctx, span := tracer.Start(ctx, "generation.Run")
	span.SetAttributes(
		attribute.Int("generation.tasks", len(tasks)),
		attribute.Int("generation.concurrency", s.cfg.Concurrency),
		attribute.Int("generation.batch_size", s.cfg.BatchSize),
	)
	defer span.End()

	total := len(tasks)
	results := make([]LeafResult, total)
	logger.Info(ctx, "content generation started", "sections", total)

	for batchStart := 0; batchStart < total; batchStart += s.cfg.BatchSize {
		batchEnd := batchStart + s.cfg.BatchSize
		if batchEnd > total {
			batchEnd = total
		}

		done := make(chan struct{}, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			go func(idx int) {
				defer func() { done <- struct{}{} }()

				if err := s.gate.Acquire(ctx, 1); err != nil {
					results[idx] = failureResult(tasks[idx], err)
					return
				}
				metrics.InflightRequests.Inc()

				results[idx] = s.generateOne(ctx, tasks[idx])

				// 释放槽位前的节流间隔，平滑对远端 API 的突发压力
				sleepWithContext(ctx, s.cfg.TaskInterval)
				metrics.InflightRequests.Dec()
				s.gate.Release(1)
			}(i)
		}
		for i := batchStart; i < batchEnd; i++ {
			<-done
		}

		logger.Info(ctx, "generation progress", "completed", batchEnd, "total", total)

		// 批次间停顿，末批之后跳过
		if batchEnd < total {
			sleepWithContext(ctx, s.cfg.BatchInterval)
		}
	}

	return results
}

// generateOne 单任务包装：把一切失败形态折算为占位结果，绝不向调度层抛错
func (s *Scheduler) generateOne(ctx context.Context, task LeafTask) (result LeafResult) {
	ctx = logger.WithContext(ctx, logger.SectionKey, task.Title)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "section generation panicked", fmt.Errorf("%v", r))
			result = failureResult(task, fmt.Errorf("%v", r))
		}
	}()

	content, err := s.writer.WriteSection(ctx, task)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		logger.Error(ctx, "section generation failed", err, "elapsed", elapsed.String())
		metrics.SectionGenerationTotal.WithLabelValues("error").Inc()
		metrics.SectionGenerationDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return failureResult(task, err)

	case content == "":
		logger.Warn(ctx, "section generation returned empty content", "elapsed", elapsed.String())
		metrics.SectionGenerationTotal.WithLabelValues("empty").Inc()
		metrics.SectionGenerationDuration.WithLabelValues("empty").Observe(elapsed.Seconds())
		return LeafResult{Title: task.Title, Chapter: task.Chapter, Content: PlaceholderEmpty, Failed: true}

	default:
		logger.Info(ctx, "section generated",
			"chars", len([]rune(content)),
			"elapsed", elapsed.String(),
		)
		metrics.SectionGenerationTotal.WithLabelValues("success").Inc()
		metrics.SectionGenerationDuration.WithLabelValues("success").Observe(elapsed.Seconds())
		metrics.SectionWordCount.Observe(float64(len([]rune(content))))
		return LeafResult{Title: task.Title, Chapter: task.Chapter, Content: content}
	}
}

// failureResult 构造异常失败的占位结果
func failureResult(task LeafTask, err error) LeafResult {
	return LeafResult{
		Title:   task.Title,
		Chapter: task.Chapter,
		Content: FailurePlaceholder(err),
		Failed:  true,
	}
}

// sleepWithContext 可被取消的延时
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
