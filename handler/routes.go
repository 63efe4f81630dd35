package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册工作区路由
func RegisterRoutes(api *gin.RouterGroup, h *WorkspaceHandler) {
	api.GET("/images", h.ListImages)
	api.POST("/images", h.Upload)
	api.POST("/images/refresh", h.Refresh)
	api.PUT("/images/:index/select", h.SelectImage)
	api.DELETE("/images/:index", h.DeleteImage)

	api.POST("/words", h.AddWord)
	api.PUT("/words/selected", h.SelectWord)
	api.PUT("/words/:index", h.EditWord)
	api.DELETE("/words/:index", h.DeleteWord)

	api.PUT("/tool", h.SelectTool)
	api.POST("/canvas/click", h.Click)
	api.POST("/canvas/drag", h.Drag)
	api.POST("/canvas/erase", h.Erase)
	api.DELETE("/canvas", h.ClearCanvas)

	api.POST("/segment", h.Segment)
	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)

	api.GET("/export/selected", h.ExportSelected)
	api.GET("/export/all", h.ExportAll)

	api.GET("/ws", h.Events)
}
