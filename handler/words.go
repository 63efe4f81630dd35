package handler

import (
	"github.com/gin-gonic/gin"
)

type wordRequest struct {
	Word string `json:"word"`
}

// AddWord 追加标注词，空词和重复词被忽略
func (h *WorkspaceHandler) AddWord(c *gin.Context) {
	var req wordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	pending, err := h.ws.Ledger.Add(req.Word)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "已添加")
}

// EditWord 重命名标注词
func (h *WorkspaceHandler) EditWord(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req wordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	pending, err := h.ws.Ledger.Edit(index, req.Word)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "已修改")
}

func (h *WorkspaceHandler) DeleteWord(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	pending, err := h.ws.Ledger.Delete(index)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "删除中")
}

// SelectWord 选中标注词，再次选中同一个词取消选择
func (h *WorkspaceHandler) SelectWord(c *gin.Context) {
	var req wordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	if _, err := h.ws.Ledger.Select(req.Word); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "已选中", h.ws.Catalog.Snapshot())
}
