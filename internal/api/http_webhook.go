package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"retratai/internal/entity"
	"retratai/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TrainingWebhook 接收训练服务商的完成回调。
// 身份由查询参数中的 user_id、model_id 与共享密钥确定，密钥校验先于读取请求体。
func (h *HTTPHandler) TrainingWebhook(c *gin.Context) {
	params := service.WebhookParams{
		UserID:  c.Query("user_id"),
		ModelID: c.Query("model_id"),
		Secret:  c.Query("webhook_secret"),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	user, modelID, err := h.webhooks.Authorize(ctx, params)
	if err != nil {
		WriteServiceError(c, err)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		InvalidPayload(c)
		return
	}
	payload, ok := decodeWebhookPayload(raw)
	if !ok {
		// 已鉴权但无法解析的回调按未知状态忽略。
		logrus.WithFields(logrus.Fields{
			"user_id":  user.ID,
			"model_id": modelID,
			"size":     len(raw),
		}).Warn("training_webhook_undecodable")
		c.JSON(http.StatusOK, entity.MessageResponse{Message: service.MsgWebhookOK})
		return
	}

	if err := h.webhooks.Handle(ctx, user, modelID, payload); err != nil {
		WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity.MessageResponse{Message: service.MsgWebhookOK})
}

// decodeWebhookPayload 解析回调请求体。output 形状不符时退回只读取 id 与 status，
// 此时 succeeded 事件缺少版本号，由服务层按上游错误处理。
func decodeWebhookPayload(raw []byte) (entity.TrainingWebhookPayload, bool) {
	var payload entity.TrainingWebhookPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload, true
	}
	var head struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.Status == "" {
		return entity.TrainingWebhookPayload{}, false
	}
	return entity.TrainingWebhookPayload{ID: head.ID, Status: head.Status}, true
}
