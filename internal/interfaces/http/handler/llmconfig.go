package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/interfaces/http/dto"
	"z-bid-doc-api/pkg/logger"
)

// LLMConfigHandler LLM 配置处理器
type LLMConfigHandler struct {
	settings *Settings
}

// NewLLMConfigHandler 创建 LLM 配置处理器
func NewLLMConfigHandler(settings *Settings) *LLMConfigHandler {
	return &LLMConfigHandler{settings: settings}
}

// Get 查询当前 LLM 配置
// @Summary 查询 LLM 配置
// @Description 返回当前生效的 LLM 调用参数，api_key 仅返回掩码
// @Tags Config
// @Produce json
// @Success 200 {object} dto.Response[dto.LLMConfigResponse]
// @Router /v1/config/llm [get]
func (h *LLMConfigHandler) Get(c *gin.Context) {
	dto.Success(c, toLLMConfigResponse(h.settings.LLM()))
}

// Update 更新 LLM 配置
// @Summary 更新 LLM 配置
// @Description 在线修改 LLM 调用参数，缺省字段保持原值，已开始的运行不受影响
// @Tags Config
// @Accept json
// @Produce json
// @Success 200 {object} dto.Response[dto.LLMConfigResponse]
// @Router /v1/config/llm [put]
func (h *LLMConfigHandler) Update(c *gin.Context) {
	var req dto.UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		dto.BadRequest(c, "max_tokens must be positive")
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		dto.BadRequest(c, "temperature must be between 0 and 2")
		return
	}
	if req.TopP != nil && (*req.TopP <= 0 || *req.TopP > 1) {
		dto.BadRequest(c, "top_p must be in (0, 1]")
		return
	}
	if req.TimeoutMs != nil && *req.TimeoutMs <= 0 {
		dto.BadRequest(c, "timeout_ms must be positive")
		return
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		dto.BadRequest(c, "max_retries must not be negative")
		return
	}

	updated := h.settings.UpdateLLM(func(cfg *config.LLMConfig) {
		if req.APIKey != nil && strings.TrimSpace(*req.APIKey) != "" {
			cfg.APIKey = strings.TrimSpace(*req.APIKey)
		}
		if req.BaseURL != nil && strings.TrimSpace(*req.BaseURL) != "" {
			cfg.BaseURL = strings.TrimSpace(*req.BaseURL)
		}
		if req.Model != nil && strings.TrimSpace(*req.Model) != "" {
			cfg.Model = strings.TrimSpace(*req.Model)
		}
		if req.MaxTokens != nil {
			cfg.MaxTokens = *req.MaxTokens
		}
		if req.Temperature != nil {
			cfg.Temperature = *req.Temperature
		}
		if req.TopP != nil {
			cfg.TopP = *req.TopP
		}
		if req.TimeoutMs != nil {
			cfg.Timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
		}
		if req.MaxRetries != nil {
			cfg.Retry.MaxRetries = *req.MaxRetries
		}
	})

	logger.Info(c.Request.Context(), "llm config updated",
		"model", updated.Model,
		"base_url", updated.BaseURL,
	)
	dto.Success(c, toLLMConfigResponse(updated))
}

func toLLMConfigResponse(cfg config.LLMConfig) dto.LLMConfigResponse {
	return dto.LLMConfigResponse{
		APIKey:      maskSecret(cfg.APIKey),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TimeoutMs:   cfg.Timeout.Milliseconds(),
		MaxRetries:  cfg.Retry.MaxRetries,
	}
}

// maskSecret 掩码敏感字段，仅保留前后各 4 位
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
