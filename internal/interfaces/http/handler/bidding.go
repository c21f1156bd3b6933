package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"z-bid-doc-api/internal/application/bidding"
	"z-bid-doc-api/internal/domain/repository"
	"z-bid-doc-api/internal/interfaces/http/dto"
	"z-bid-doc-api/internal/prompt"
)

// BiddingHandler 投标文件生成处理器
type BiddingHandler struct {
	settings *Settings
	store    repository.DocumentStore
	prompts  *prompt.Registry
}

// NewBiddingHandler 创建投标文件生成处理器
func NewBiddingHandler(settings *Settings, store repository.DocumentStore, prompts *prompt.Registry) *BiddingHandler {
	return &BiddingHandler{
		settings: settings,
		store:    store,
		prompts:  prompts,
	}
}

// GenerateOutline 生成大纲接口
// @Summary 生成大纲
// @Description 读取技术要求与评分标准，生成并保存投标文件大纲
// @Tags Outline
// @Produce json
// @Success 200 {object} dto.Response[dto.OutlineGenerateResponse]
// @Router /v1/outline/generate [post]
func (h *BiddingHandler) GenerateOutline(c *gin.Context) {
	cfg := h.settings.Snapshot()
	wf := bidding.NewWorkflow(&cfg, h.store, h.prompts)
	defer wf.Close()

	o, outlineJSON, err := wf.GenerateOutline(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.OutlineGenerateResponse{
		RunID:    wf.RunID(),
		Chapters: len(o.Chapters),
		Sections: o.CountLeaves(),
		Outline:  json.RawMessage(outlineJSON),
	})
}

// GetOutline 查询大纲接口
// @Summary 查询大纲
// @Description 返回最近一次保存的大纲
// @Tags Outline
// @Produce json
// @Success 200 {object} dto.Response[dto.OutlineResponse]
// @Router /v1/outline [get]
func (h *BiddingHandler) GetOutline(c *gin.Context) {
	data, err := h.store.LoadOutlineJSON(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.OutlineResponse{Outline: json.RawMessage(data)})
}

// GenerateDocument 生成文档接口
// @Summary 生成文档
// @Description 基于已保存的大纲并发生成全部小节并装配为完整文档
// @Tags Document
// @Produce json
// @Success 200 {object} dto.Response[dto.DocumentGenerateResponse]
// @Router /v1/documents/generate [post]
func (h *BiddingHandler) GenerateDocument(c *gin.Context) {
	cfg := h.settings.Snapshot()
	wf := bidding.NewWorkflow(&cfg, h.store, h.prompts)
	defer wf.Close()

	stats, err := wf.GenerateDocument(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.DocumentGenerateResponse{
		RunID:     wf.RunID(),
		Sections:  stats.Sections,
		Failed:    stats.Failed,
		ElapsedMs: stats.Elapsed.Milliseconds(),
	})
}

// GetContent 查询文档正文接口
// @Summary 查询文档正文
// @Description 返回最近一次生成的完整文档
// @Tags Document
// @Produce json
// @Success 200 {object} dto.Response[dto.ContentResponse]
// @Router /v1/documents/content [get]
func (h *BiddingHandler) GetContent(c *gin.Context) {
	content, err := h.store.LoadContent(c.Request.Context())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ContentResponse{Content: content})
}
