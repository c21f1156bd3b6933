// Package llm 提供 LLM API 客户端与响应清洗功能
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/pkg/logger"
	"z-bid-doc-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 一轮带角色标记的对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrTimeout 重试耗尽后请求仍然超时
var ErrTimeout = errors.New("llm request timed out after retries")

// ErrMalformedResponse 成功响应缺少预期的 envelope 字段
var ErrMalformedResponse = errors.New("malformed llm response envelope")

// APIError API 返回非 2xx 状态码
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api returned status %d: %s", e.Status, e.Body)
}

// chatRequest chat/completions 请求体
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
}

// chatResponse chat/completions 响应 envelope
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client LLM API 客户端。
// 网络会话在首次调用时惰性创建，同一次生成运行内的并发调用共享连接池；
// Close 之后再次调用会透明地重建会话。
type Client struct {
	cfg *config.LLMConfig

	mu      sync.Mutex
	session *http.Client
}

// NewClient 创建 LLM 客户端，配置由调用方注入
func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{cfg: cfg}
}

// ensureSession 确保会话存在且有效
func (c *Client) ensureSession() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if c.cfg.Proxy.Enabled && c.cfg.Proxy.URL != "" {
		proxyURL, err := url.Parse(c.cfg.Proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", c.cfg.Proxy.URL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	// 单次请求的超时由每次调用的 context 控制
	c.session = &http.Client{Transport: transport}
	return c.session, nil
}

// Close 释放网络会话。可多次调用，幂等。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.CloseIdleConnections()
		c.session = nil
	}
}

// Call 发起一次对话式请求并返回文本补全。
// 超时按指数退避重试至配置的最大次数，退避耗尽返回 ErrTimeout；
// 非 2xx 状态码不重试，直接返回 *APIError。
// expectJSON 为 true 时返回经 Normalize 清洗后的规范 JSON 文本。
func (c *Client) Call(ctx context.Context, messages []Message, expectJSON bool) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Call")
	span.SetAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.Bool("llm.expect_json", expectJSON),
		attribute.Int("llm.messages", len(messages)),
	)
	defer span.End()

	start := time.Now()
	content, err := c.callWithRetry(ctx, messages)
	metrics.LLMCallDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		status := "error"
		if errors.Is(err, ErrTimeout) {
			status = "timeout"
		}
		metrics.LLMCallTotal.WithLabelValues(c.cfg.Model, status).Inc()
		return "", err
	}
	metrics.LLMCallTotal.WithLabelValues(c.cfg.Model, "success").Inc()

	if expectJSON {
		normalized, err := Normalize(content, true)
		if err != nil {
			span.RecordError(err)
			logger.Error(ctx, "llm response is not valid json", err)
			return "", err
		}
		return normalized, nil
	}
	return strings.TrimSpace(content), nil
}

// callWithRetry 超时重试循环：第 k 次重试前等待 delay * backoff^(k-1)
func (c *Client) callWithRetry(ctx context.Context, messages []Message) (string, error) {
	maxRetries := c.cfg.Retry.MaxRetries

	for attempt := 0; ; attempt++ {
		content, err := c.doCall(ctx, messages)
		if err == nil {
			return content, nil
		}

		// 调用方取消不再重试
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isTimeout(err) {
			return "", err
		}

		if attempt >= maxRetries {
			logger.Error(ctx, "llm request failed after maximum retries due to timeout", err,
				"attempts", attempt+1)
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		wait := time.Duration(float64(c.cfg.Retry.Delay) * math.Pow(c.cfg.Retry.Backoff, float64(attempt)))
		metrics.LLMRetryTotal.WithLabelValues(c.cfg.Model).Inc()
		logger.Warn(ctx, "llm request timeout, retrying",
			"wait", wait.String(),
			"attempt", attempt+1,
			"max_retries", maxRetries,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// doCall 执行单次请求并提取文本补全
func (c *Client) doCall(ctx context.Context, messages []Message) (string, error) {
	session, err := c.ensureSession()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal llm request: %w", err)
	}

	reqCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := session.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var envelope chatResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message == nil {
		return "", fmt.Errorf("%w: missing choices[0].message", ErrMalformedResponse)
	}

	return strings.TrimSpace(envelope.Choices[0].Message.Content), nil
}

// isTimeout 判断错误是否为连接/响应超时
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
