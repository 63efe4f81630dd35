package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorStatus 错误对应的状态码和提示
var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{service.ErrInvalidFileType, http.StatusBadRequest, "不支持的文件类型，仅支持 JPEG/PNG/WEBP"},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "文件大小超过限制"},
	{service.ErrDuplicateUpload, http.StatusConflict, "该图片已上传"},
	{service.ErrAlignmentViolation, http.StatusBadGateway, "标注词与掩码数据不一致"},
	{service.ErrBackendRejected, http.StatusBadGateway, "后端请求失败"},
	{service.ErrNoMaskSelected, http.StatusNotFound, "未选中掩码"},
	{service.ErrNoMasksAvailable, http.StatusNotFound, "当前图片没有掩码"},
	{service.ErrNoImageSelected, http.StatusConflict, "未选中图片"},
	{service.ErrImageNotFound, http.StatusNotFound, "图片不存在"},
	{service.ErrNotUploaded, http.StatusConflict, "图片尚未上传完成"},
	{service.ErrNoWordSelected, http.StatusBadRequest, "未选中标注词"},
	{service.ErrWordNotFound, http.StatusNotFound, "标注词不存在"},
	{service.ErrInvalidWord, http.StatusBadRequest, "标注词无效或已存在"},
	{service.ErrToolUnavailable, http.StatusBadRequest, "当前工具不可用"},
	{service.ErrInvalidPrompt, http.StatusBadRequest, "坐标超出图片范围"},
	{service.ErrSegmentationBusy, http.StatusConflict, "正在分割，请稍候"},
	{service.ErrNotSegmentable, http.StatusBadRequest, "请先添加包含点或边界框"},
	{service.ErrInvalidSettings, http.StatusBadRequest, "分割参数无效"},
	{service.ErrInvalidFormat, http.StatusBadRequest, "导出格式无效"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "请求超时"},
}

func respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "服务器内部错误"
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			status, message = e.status, e.message
			break
		}
	}

	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		utils.Logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := model.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func respondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondPending 后台操作：默认立即返回 202 和当前快照，?wait=true 时等待结果
func (h *WorkspaceHandler) respondPending(c *gin.Context, p *service.Pending, message string) {
	if p == nil {
		respondOK(c, message, h.ws.Catalog.Snapshot())
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, model.Response{
			Success: true,
			Message: message,
			Data:    h.ws.Catalog.Snapshot(),
		})
		return
	}

	if err := p.Wait(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, message, h.ws.Catalog.Snapshot())
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "下标参数无效", err)
		return 0, false
	}
	return index, true
}
