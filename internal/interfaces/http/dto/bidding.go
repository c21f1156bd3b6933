package dto

import "encoding/json"

// OutlineGenerateResponse 大纲生成响应
type OutlineGenerateResponse struct {
	RunID    string          `json:"run_id"`
	Chapters int             `json:"chapters"`
	Sections int             `json:"sections"`
	Outline  json.RawMessage `json:"outline"`
}

// OutlineResponse 大纲查询响应
type OutlineResponse struct {
	Outline json.RawMessage `json:"outline"`
}

// DocumentGenerateResponse 文档生成响应
type DocumentGenerateResponse struct {
	RunID     string `json:"run_id"`
	Sections  int    `json:"sections"`
	Failed    int    `json:"failed"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// ContentResponse 文档正文查询响应
type ContentResponse struct {
	Content string `json:"content"`
}

// LLMConfigResponse LLM 配置查询响应，api_key 仅返回掩码
type LLMConfigResponse struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TimeoutMs   int64   `json:"timeout_ms"`
	MaxRetries  int     `json:"max_retries"`
}

// UpdateLLMConfigRequest LLM 配置更新请求，缺省字段保持原值
type UpdateLLMConfigRequest struct {
	APIKey      *string  `json:"api_key"`
	BaseURL     *string  `json:"base_url"`
	Model       *string  `json:"model"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	TimeoutMs   *int64   `json:"timeout_ms"`
	MaxRetries  *int     `json:"max_retries"`
}
