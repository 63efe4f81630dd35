package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WorkspaceHandler struct {
	cfg *config.Config
	ws  *service.Workspace
}

func NewWorkspaceHandler(cfg *config.Config, ws *service.Workspace) *WorkspaceHandler {
	return &WorkspaceHandler{
		cfg: cfg,
		ws:  ws,
	}
}

// ListImages 返回当前目录快照
func (h *WorkspaceHandler) ListImages(c *gin.Context) {
	respondOK(c, "查询成功", h.ws.Catalog.Snapshot())
}

// Upload 处理图片上传，占位记录立即可见
func (h *WorkspaceHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		badRequest(c, "请上传图片文件", err)
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		utils.Logger.Error("failed to open uploaded file", zap.Error(err))
		respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		utils.Logger.Error("failed to read uploaded file", zap.Error(err))
		respondError(c, err)
		return
	}

	pending, err := h.ws.Images.AddImage(service.UploadFile{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "上传中")
}

// Refresh 从后端重新加载图片列表
func (h *WorkspaceHandler) Refresh(c *gin.Context) {
	if err := h.ws.Images.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "刷新成功", h.ws.Catalog.Snapshot())
}

// SelectImage 选中图片
func (h *WorkspaceHandler) SelectImage(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if _, err := h.ws.Images.SelectImage(index); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "已选中", h.ws.Catalog.Snapshot())
}

// DeleteImage 删除图片，后端确认后才从目录移除
func (h *WorkspaceHandler) DeleteImage(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	pending, err := h.ws.Images.DeleteImage(index)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "删除中")
}
