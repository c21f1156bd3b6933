// Package prompt 提供内嵌提示词模板的注册表
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// ID 提示词模板标识
type ID string

const (
	OutlineSystemV1   ID = "outline_system_v1"
	OutlineTechV1     ID = "outline_tech_v1"
	OutlineScoreV1    ID = "outline_score_v1"
	OutlineGenerateV1 ID = "outline_generate_v1"
	ContentSystemV1   ID = "content_system_v1"
	ContentSectionV1  ID = "content_section_v1"
)

// Registry 模板注册表，首次读取后缓存
type Registry struct {
	mu    sync.RWMutex
	cache map[ID]string
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[ID]string),
	}
}

// Text 返回模板原文
func (r *Registry) Text(id ID) (string, error) {
	if r == nil {
		return "", fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if text, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return text, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if text, ok := r.cache[id]; ok {
		return text, nil
	}

	data, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.txt", id))
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s: %w", id, err)
	}

	text := strings.TrimSpace(string(data))
	r.cache[id] = text
	return text, nil
}

// Render 渲染模板，将 {name} 占位符替换为给定值
func (r *Registry) Render(id ID, vars map[string]string) (string, error) {
	text, err := r.Text(id)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}
