package generation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/domain/outline"
)

// writerFunc 便于用闭包充当 SectionWriter
type writerFunc func(ctx context.Context, task LeafTask) (string, error)

func (f writerFunc) WriteSection(ctx context.Context, task LeafTask) (string, error) {
	return f(ctx, task)
}

func makeTasks(n int) []LeafTask {
	tasks := make([]LeafTask, n)
	for i := range tasks {
		tasks[i] = LeafTask{
			Title:          fmt.Sprintf("1.1.%d 小节%d", i+1, i+1),
			ContentSummary: fmt.Sprintf("概要 %d", i+1),
			Chapter:        "第一章 总体方案",
		}
	}
	return tasks
}

func TestScheduler_ResultsAlignWithTasks(t *testing.T) {
	tasks := makeTasks(23)

	// 随机延迟打乱完成顺序，结果仍须与任务一一对应
	writer := writerFunc(func(ctx context.Context, task LeafTask) (string, error) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		return "内容：" + task.Title, nil
	})

	s := NewScheduler(writer, config.GenerationConfig{Concurrency: 5, BatchSize: 8})
	results := s.Run(context.Background(), tasks)

	require.Len(t, results, len(tasks))
	for i, r := range results {
		assert.Equal(t, tasks[i].Title, r.Title)
		assert.Equal(t, tasks[i].Chapter, r.Chapter)
		assert.Equal(t, "内容："+tasks[i].Title, r.Content)
		assert.False(t, r.Failed)
	}
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	var inflight, peak atomic.Int32

	writer := writerFunc(func(ctx context.Context, task LeafTask) (string, error) {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return "ok", nil
	})

	s := NewScheduler(writer, config.GenerationConfig{Concurrency: 3, BatchSize: 10})
	results := s.Run(context.Background(), makeTasks(50))

	require.Len(t, results, 50)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestScheduler_FailureModes(t *testing.T) {
	tasks := makeTasks(4)

	writer := writerFunc(func(ctx context.Context, task LeafTask) (string, error) {
		switch task.Title {
		case tasks[0].Title:
			return "正常内容", nil
		case tasks[1].Title:
			return "", fmt.Errorf("下游超时")
		case tasks[2].Title:
			return "", nil
		default:
			panic("writer exploded")
		}
	})

	s := NewScheduler(writer, config.GenerationConfig{Concurrency: 2, BatchSize: 2})
	results := s.Run(context.Background(), tasks)
	require.Len(t, results, 4)

	assert.Equal(t, "正常内容", results[0].Content)
	assert.False(t, results[0].Failed)

	assert.True(t, results[1].Failed)
	assert.Equal(t, "生成失败：下游超时", results[1].Content)

	assert.True(t, results[2].Failed)
	assert.Equal(t, PlaceholderEmpty, results[2].Content)

	assert.True(t, results[3].Failed)
	assert.True(t, strings.HasPrefix(results[3].Content, "生成失败："))
	assert.Contains(t, results[3].Content, "writer exploded")
}

func TestScheduler_EmptyTaskList(t *testing.T) {
	writer := writerFunc(func(ctx context.Context, task LeafTask) (string, error) {
		t.Fatal("writer should not be called")
		return "", nil
	})

	s := NewScheduler(writer, config.GenerationConfig{Concurrency: 5, BatchSize: 5})
	results := s.Run(context.Background(), nil)
	assert.Empty(t, results)
}

func TestScheduler_DefaultsApplied(t *testing.T) {
	writer := writerFunc(func(ctx context.Context, task LeafTask) (string, error) {
		return "ok", nil
	})

	s := NewScheduler(writer, config.GenerationConfig{})
	assert.Equal(t, 15, s.cfg.Concurrency)
	assert.Equal(t, 15, s.cfg.BatchSize)

	results := s.Run(context.Background(), makeTasks(3))
	require.Len(t, results, 3)
}

func TestTasksFromPreservesOrder(t *testing.T) {
	o := &outline.Outline{Chapters: []outline.Chapter{
		{
			Title: "第一章",
			Sections: []outline.Section{
				{Title: "1.1 概述", SubSections: []outline.SubSection{
					{Title: "1.1.1 背景", ContentSummary: "背景概要"},
					{Title: "1.1.2 目标", ContentSummary: "目标概要"},
				}},
			},
		},
		{
			Title: "第二章",
			Sections: []outline.Section{
				{Title: "2.1 方案", SubSections: []outline.SubSection{
					{Title: "2.1.1 架构", ContentSummary: "架构概要"},
				}},
			},
		},
	}}

	tasks := TasksFrom(o)
	require.Len(t, tasks, 3)
	assert.Equal(t, LeafTask{Title: "1.1.1 背景", ContentSummary: "背景概要", Chapter: "第一章"}, tasks[0])
	assert.Equal(t, "1.1.2 目标", tasks[1].Title)
	assert.Equal(t, "第二章", tasks[2].Chapter)
}
