package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Segment 对选中标注词发起自动分割
func (h *WorkspaceHandler) Segment(c *gin.Context) {
	pending, err := h.ws.Segmenter.Segment()
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondPending(c, pending, "分割中")
}

func (h *WorkspaceHandler) GetSettings(c *gin.Context) {
	respondOK(c, "查询成功", h.ws.Segmenter.Settings())
}

func (h *WorkspaceHandler) UpdateSettings(c *gin.Context) {
	var settings model.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	if err := h.ws.Segmenter.SetSettings(settings); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "已更新", settings)
}

// ExportSelected 下载选中标注词的掩码
func (h *WorkspaceHandler) ExportSelected(c *gin.Context) {
	h.export(c, h.ws.Exporter.ExportSelected)
}

// ExportAll 下载当前图片的全部掩码
func (h *WorkspaceHandler) ExportAll(c *gin.Context) {
	h.export(c, h.ws.Exporter.ExportAll)
}

func (h *WorkspaceHandler) export(c *gin.Context, fn func(context.Context, service.Format) (*service.Artifact, error)) {
	format := service.Format(c.DefaultQuery("format", string(service.FormatContours)))

	artifact, err := fn(c.Request.Context(), format)
	if err != nil {
		respondError(c, err)
		return
	}

	etag := `"` + utils.BytesMD5(artifact.Data) + `"`
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	utils.Logger.Info("mask exported",
		zap.String("filename", artifact.Filename),
		zap.String("size", humanize.Bytes(uint64(len(artifact.Data)))))

	c.Header("ETag", etag)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.MimeType, artifact.Data)
}
