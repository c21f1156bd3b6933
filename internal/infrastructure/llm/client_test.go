package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-doc-api/internal/config"
)

func testLLMConfig(baseURL string) *config.LLMConfig {
	return &config.LLMConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "test-model",
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        0.1,
		Timeout:     2 * time.Second,
		Retry: config.RetryConfig{
			MaxRetries: 2,
			Delay:      10 * time.Millisecond,
			Backoff:    1.5,
		},
	}
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func TestClient_Call_Success(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("  生成的小节内容  ")))
	}))
	defer srv.Close()

	c := NewClient(testLLMConfig(srv.URL))
	defer c.Close()

	out, err := c.Call(context.Background(), []Message{
		{Role: RoleSystem, Content: "你是投标文件撰写专家"},
		{Role: RoleUser, Content: "写第一节"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "生成的小节内容", out)

	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
}

func TestClient_Call_ExpectJSONNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"a\": 1,}\n```")))
	}))
	defer srv.Close()

	c := NewClient(testLLMConfig(srv.URL))
	defer c.Close()

	out, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "大纲"}}, true)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestClient_Call_APIErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "quota exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(testLLMConfig(srv.URL))
	defer c.Close()

	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, false)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Body, "quota exceeded")

	// 非超时错误不重试
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Call_TimeoutRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	cfg := testLLMConfig(srv.URL)
	cfg.Timeout = 30 * time.Millisecond
	cfg.Retry = config.RetryConfig{MaxRetries: 2, Delay: 5 * time.Millisecond, Backoff: 2.0}

	c := NewClient(cfg)
	defer c.Close()

	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	// 首次调用 + max_retries 次重试
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Call_CallerCancelNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// 读完请求体后服务端才能感知客户端断开并取消 r.Context()
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testLLMConfig(srv.URL)
	cfg.Timeout = time.Second

	c := NewClient(cfg)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, []Message{{Role: RoleUser, Content: "x"}}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Call_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not_json", body: "plain text"},
		{name: "empty_choices", body: `{"choices": []}`},
		{name: "missing_message", body: `{"choices": [{}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(testLLMConfig(srv.URL))
			defer c.Close()

			_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestClient_CloseIdempotentAndRecreates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := NewClient(testLLMConfig(srv.URL))

	_, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, false)
	require.NoError(t, err)

	c.Close()
	c.Close()

	// 关闭后再调用会透明重建会话
	out, err := c.Call(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	c.Close()
}
