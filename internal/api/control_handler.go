package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/serial-control/internal/errors"
	"github.com/wfunc/serial-control/internal/hardware"
	"github.com/wfunc/serial-control/internal/middleware"
	"go.uber.org/zap"
)

// 返回给浏览器的固定消息
const (
	msgInvalidCommand = "Invalid command"
	msgSendFailed     = "Failed to send command."
)

// ControlHandler 控制命令处理器
type ControlHandler struct {
	device Device
	log    *zap.Logger
}

// NewControlHandler 创建控制命令处理器
func NewControlHandler(device Device, log *zap.Logger) *ControlHandler {
	return &ControlHandler{
		device: device,
		log:    log,
	}
}

// Control 处理 GET /control/:mode
func (h *ControlHandler) Control(c *gin.Context) {
	mode := c.Param("mode")

	cmd, err := hardware.ParseCommand(mode)
	if err != nil {
		h.log.Warn("无效的控制命令",
			zap.String("mode", mode),
			zap.String("request_id", middleware.GetRequestID(c)))
		c.JSON(apperrors.HTTPStatus(err), gin.H{
			"status":  "error",
			"message": msgInvalidCommand,
		})
		return
	}

	if err := h.device.Send(c.Request.Context(), cmd); err != nil {
		fields := []zap.Field{
			zap.String("mode", mode),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		}
		if appErr, ok := err.(*apperrors.AppError); ok {
			fields = append(fields, zap.String("stack", appErr.GetStack()))
		}
		h.log.Error("发送命令失败", fields...)
		c.JSON(apperrors.HTTPStatus(err), gin.H{
			"status":  "error",
			"message": msgSendFailed,
		})
		return
	}

	h.log.Info("命令已发送", zap.String("mode", mode))

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"mode":   cmd.Mode(),
	})
}
