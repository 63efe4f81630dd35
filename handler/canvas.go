package handler

import (
	"github.com/TIANLI0/MaskKit/model"
	"github.com/gin-gonic/gin"
)

type toolRequest struct {
	Tool model.Tool `json:"tool" binding:"required"`
}

type dragRequest struct {
	From model.Point `json:"from"`
	To   model.Point `json:"to"`
}

// SelectTool 切换画布工具
func (h *WorkspaceHandler) SelectTool(c *gin.Context) {
	var req toolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	if _, err := h.ws.Canvas.ClickTool(req.Tool); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "已切换", h.ws.Catalog.Snapshot())
}

func (h *WorkspaceHandler) Click(c *gin.Context) {
	var p model.Point
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	img, err := h.ws.Canvas.Click(p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "成功", img.Prompts)
}

func (h *WorkspaceHandler) Drag(c *gin.Context) {
	var req dragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	img, err := h.ws.Canvas.Drag(req.From, req.To)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "成功", img.Prompts)
}

// Erase 橡皮擦删除，实际移除在短暂延迟后发生
func (h *WorkspaceHandler) Erase(c *gin.Context) {
	var target model.Primitive
	if err := c.ShouldBindJSON(&target); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	if err := h.ws.Canvas.Erase(target); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "删除中", nil)
}

// ClearCanvas 清空全部提示图元
func (h *WorkspaceHandler) ClearCanvas(c *gin.Context) {
	img, err := h.ws.Canvas.ClearAll()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "已清空", img.Prompts)
}
