package handler

import (
	"sync"

	"z-bid-doc-api/internal/config"
)

// Settings 运行期可调配置的持有者。
// LLM 参数可通过配置接口在线修改，每次生成运行读取当前快照，
// 运行中途的修改不影响已开始的运行。
type Settings struct {
	mu  sync.RWMutex
	cfg *config.Config
}

// NewSettings 创建配置持有者
func NewSettings(cfg *config.Config) *Settings {
	return &Settings{cfg: cfg}
}

// Snapshot 返回当前配置的值拷贝
func (s *Settings) Snapshot() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// LLM 返回当前 LLM 配置的值拷贝
func (s *Settings) LLM() config.LLMConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.LLM
}

// UpdateLLM 在锁内应用一次 LLM 配置修改
func (s *Settings) UpdateLLM(apply func(*config.LLMConfig)) config.LLMConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&s.cfg.LLM)
	return s.cfg.LLM
}
