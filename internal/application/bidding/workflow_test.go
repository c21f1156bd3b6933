package bidding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/infrastructure/storage"
	"z-bid-doc-api/internal/prompt"
)

const testOutlineJSON = `{
  "body_paragraphs": [
    {
      "chapter_title": "第一章 技术方案",
      "sections": [
        {
          "section_title": "1.1 总体设计",
          "sub_sections": [
            {"sub_section_title": "1.1.1 架构设计", "content_summary": "描述架构"},
            {"sub_section_title": "1.1.2 部署设计", "content_summary": "描述部署"}
          ]
        }
      ]
    }
  ]
}`

type llmRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return body
}

// newWorkflowFixture 搭建完整运行环境：文件存储、模板注册表、伪 LLM 服务
func newWorkflowFixture(t *testing.T, handler http.HandlerFunc) (*Workflow, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	cfg := &config.Config{
		LLM: config.LLMConfig{
			APIKey:    "test-key",
			BaseURL:   srv.URL,
			Model:     "test/model",
			MaxTokens: 1024,
			Timeout:   5 * time.Second,
			Retry:     config.RetryConfig{MaxRetries: 1, Delay: 10 * time.Millisecond, Backoff: 1.5},
		},
		Generation: config.GenerationConfig{Concurrency: 4, BatchSize: 4},
		Storage:    config.StorageConfig{BaseDir: dir},
	}

	wf := NewWorkflow(cfg, store, prompt.NewRegistry())
	t.Cleanup(wf.Close)
	return wf, dir
}

func writeInputs(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs", "tech.md"), []byte("# 技术要求"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs", "score.md"), []byte("# 评分标准"), 0o644))
}

func TestWorkflow_GenerateOutline(t *testing.T) {
	var gotReq llmRequest
	wf, dir := newWorkflowFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write(completion("```json\n" + testOutlineJSON + "\n```"))
	})
	writeInputs(t, dir)

	o, outlineJSON, err := wf.GenerateOutline(context.Background())
	require.NoError(t, err)
	require.Len(t, o.Chapters, 1)
	assert.Equal(t, 2, o.CountLeaves())
	assert.Contains(t, string(outlineJSON), "第一章 技术方案")

	// 三轮对话：system + 技术要求 + 评分标准 + 生成指令
	require.Len(t, gotReq.Messages, 4)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[1].Content, "# 技术要求")
	assert.Contains(t, gotReq.Messages[2].Content, "# 评分标准")

	// 大纲落盘：JSON 与 Markdown 两份
	saved, err := os.ReadFile(filepath.Join(dir, "outputs", "outline", "outline.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(outlineJSON), string(saved))

	md, err := os.ReadFile(filepath.Join(dir, "outputs", "outline", "outline.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# 第一章 技术方案")
}

func TestWorkflow_GenerateOutline_MissingInputs(t *testing.T) {
	wf, _ := newWorkflowFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("llm should not be called when inputs are missing")
	})

	_, _, err := wf.GenerateOutline(context.Background())
	require.Error(t, err)
}

func TestWorkflow_GenerateOutline_MalformedOutline(t *testing.T) {
	wf, dir := newWorkflowFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completion(`{"chapters": []}`))
	})
	writeInputs(t, dir)

	_, _, err := wf.GenerateOutline(context.Background())
	require.Error(t, err)

	// 非法大纲不落盘
	_, statErr := os.Stat(filepath.Join(dir, "outputs", "outline", "outline.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkflow_GenerateDocument(t *testing.T) {
	wf, dir := newWorkflowFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var req llmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// 小节生成是 system + 单轮用户消息
		require.Len(t, req.Messages, 2)
		userTurn := req.Messages[1].Content
		switch {
		case strings.Contains(userTurn, "1.1.1 架构设计"):
			w.Write(completion("架构设计正文。"))
		case strings.Contains(userTurn, "1.1.2 部署设计"):
			// 空内容触发占位文本
			w.Write(completion(""))
		default:
			t.Errorf("unexpected section request: %s", userTurn)
		}
	})

	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveOutline(context.Background(), []byte(testOutlineJSON), "# 大纲"))

	stats, err := wf.GenerateDocument(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sections)
	assert.Equal(t, 1, stats.Failed)

	content, err := os.ReadFile(filepath.Join(dir, "outputs", "content.md"))
	require.NoError(t, err)
	text := string(content)

	// 文档以大纲渲染开头，正文按章/节/小节层级装配
	assert.Contains(t, text, "# 第一章 技术方案")
	assert.Contains(t, text, "### 1.1.1 架构设计")
	assert.Contains(t, text, "架构设计正文。")
	assert.Contains(t, text, "### 1.1.2 部署设计")
	assert.Contains(t, text, "生成失败，请手动补充。")
}

func TestWorkflow_GenerateDocument_NoOutline(t *testing.T) {
	wf, _ := newWorkflowFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("llm should not be called without a saved outline")
	})

	_, err := wf.GenerateDocument(context.Background())
	require.Error(t, err)
}
