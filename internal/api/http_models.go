package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"retratai/internal/entity"
	"retratai/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TrainModel 提交训练。耗时主要在下载与描述图片，使用请求自身的上下文。
func (h *HTTPHandler) TrainModel(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	var req entity.TrainModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	resp, err := h.training.Submit(c.Request.Context(), user.ID, req)
	if err != nil {
		WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) ListModels(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	var params entity.ModelQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "Parámetros de consulta inválidos.")
		return
	}
	params.UserID = user.ID
	params.Status = strings.ToLower(strings.TrimSpace(params.Status))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	models, meta, err := h.repo.ListModels(ctx, &params)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("models_list_failed")
		InternalError(c, "No se pudieron cargar los modelos.")
		return
	}
	if models == nil {
		models = []entity.DbModel{}
	}
	if meta == nil {
		page, pageSize := params.Normalize()
		meta = &entity.Meta{Page: int64(page), PageSize: int64(pageSize), Total: int64(len(models))}
	}

	c.JSON(http.StatusOK, entity.ModelListResponse{Models: models, Meta: meta})
}

// GetModel 返回模型及其训练样本与生成结果，仅限模型所有者。
func (h *HTTPHandler) GetModel(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "Identificador de modelo inválido.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	dbModel, err := h.repo.GetUserModel(ctx, user.ID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorResponse(c, http.StatusNotFound, ErrCodeModelNotFound, service.MsgModelNotFound)
			return
		}
		logrus.WithError(err).WithField("model_id", id).Error("model_load_failed")
		InternalError(c, "No se pudo cargar el modelo.")
		return
	}

	samples, err := h.repo.ListSamples(ctx, dbModel.ID)
	if err != nil {
		logrus.WithError(err).WithField("model_id", id).Error("samples_load_failed")
		InternalError(c, "No se pudo cargar el modelo.")
		return
	}
	images, err := h.repo.ListImages(ctx, dbModel.ID)
	if err != nil {
		logrus.WithError(err).WithField("model_id", id).Error("images_load_failed")
		InternalError(c, "No se pudo cargar el modelo.")
		return
	}
	if samples == nil {
		samples = []entity.DbSample{}
	}
	if images == nil {
		images = []entity.DbImage{}
	}

	c.JSON(http.StatusOK, entity.ModelDetail{
		DbModel: *dbModel,
		Samples: samples,
		Images:  images,
	})
}

// GenerateImages 同步执行生成流程，返回时图片已保存。
func (h *HTTPHandler) GenerateImages(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	var req entity.GenerateImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeValidation, service.MsgMissingModelID)
		return
	}

	dbUser, err := h.repo.GetUserByID(c.Request.Context(), user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("generation_user_load_failed")
		Unauthorized(c, service.MsgUnauthorized)
		return
	}

	resp, err := h.generation.Generate(c.Request.Context(), dbUser, req.ModelID)
	if err != nil {
		WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
