package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/interfaces/http/dto"
)

func newConfigTestRouter(cfg *config.Config) (*gin.Engine, *Settings) {
	gin.SetMode(gin.TestMode)
	settings := NewSettings(cfg)
	h := NewLLMConfigHandler(settings)

	r := gin.New()
	r.GET("/v1/config/llm", h.Get)
	r.PUT("/v1/config/llm", h.Update)
	return r, settings
}

func baseTestConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			APIKey:      "sk-abcdef1234567890",
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "test/model",
			MaxTokens:   8192,
			Temperature: 0.7,
			TopP:        0.1,
			Timeout:     30 * time.Second,
			Retry:       config.RetryConfig{MaxRetries: 3, Delay: 2 * time.Second, Backoff: 1.5},
		},
	}
}

func TestLLMConfigHandler_GetMasksAPIKey(t *testing.T) {
	r, _ := newConfigTestRouter(baseTestConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/config/llm", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response[dto.LLMConfigResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "sk-a****7890", resp.Data.APIKey)
	assert.NotContains(t, w.Body.String(), "sk-abcdef1234567890")
	assert.Equal(t, "test/model", resp.Data.Model)
	assert.Equal(t, int64(30000), resp.Data.TimeoutMs)
}

func TestLLMConfigHandler_UpdatePartial(t *testing.T) {
	r, settings := newConfigTestRouter(baseTestConfig())

	body := `{"model": "other/model", "temperature": 0.3, "timeout_ms": 60000}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/config/llm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	got := settings.LLM()
	assert.Equal(t, "other/model", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, time.Minute, got.Timeout)

	// 未提交的字段保持原值
	assert.Equal(t, "sk-abcdef1234567890", got.APIKey)
	assert.Equal(t, 8192, got.MaxTokens)
	assert.Equal(t, 3, got.Retry.MaxRetries)
}

func TestLLMConfigHandler_UpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not_json", body: "not json"},
		{name: "negative_max_tokens", body: `{"max_tokens": -1}`},
		{name: "temperature_out_of_range", body: `{"temperature": 3.5}`},
		{name: "top_p_zero", body: `{"top_p": 0}`},
		{name: "negative_retries", body: `{"max_retries": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, settings := newConfigTestRouter(baseTestConfig())

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/v1/config/llm", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			// 校验失败不产生任何修改
			assert.Equal(t, baseTestConfig().LLM, settings.LLM())
		})
	}
}

func TestLLMConfigHandler_BlankStringsIgnored(t *testing.T) {
	r, settings := newConfigTestRouter(baseTestConfig())

	body := `{"api_key": "  ", "model": ""}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/config/llm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	got := settings.LLM()
	assert.Equal(t, "sk-abcdef1234567890", got.APIKey)
	assert.Equal(t, "test/model", got.Model)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "sk-1****wxyz", maskSecret("sk-1234567890wxyz"))
}
