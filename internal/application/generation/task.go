// Package generation 实现小节内容的受限并发生成与重组
package generation

import (
	"z-bid-doc-api/internal/domain/outline"
)

// LeafTask 待生成的小节任务：大纲小节的不可变扁平投影
type LeafTask struct {
	Title          string
	ContentSummary string
	Chapter        string
}

// LeafResult 单个小节的生成结果。
// Content 要么是生成的正文，要么是确定性的失败占位文本，绝不缺失。
type LeafResult struct {
	Title   string
	Chapter string
	Content string
	Failed  bool
}

// 失败占位文本：区分「模型拒答/空回复」与「调用异常」
const (
	PlaceholderEmpty         = "生成失败，请手动补充。"
	placeholderFailurePrefix = "生成失败："
)

// FailurePlaceholder 构造异常失败的占位文本
func FailurePlaceholder(err error) string {
	return placeholderFailurePrefix + err.Error()
}

// TasksFrom 从大纲生成任务列表，顺序与大纲先序遍历一致
func TasksFrom(o *outline.Outline) []LeafTask {
	leaves := o.Leaves()
	tasks := make([]LeafTask, 0, len(leaves))
	for _, leaf := range leaves {
		tasks = append(tasks, LeafTask{
			Title:          leaf.Title,
			ContentSummary: leaf.ContentSummary,
			Chapter:        leaf.Chapter,
		})
	}
	return tasks
}
