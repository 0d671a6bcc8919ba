package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"retratai/internal/entity"
	"retratai/internal/storage"
	"retratai/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadSize    = 10 << 20
	uploadFormField  = "file"
	multipartReserve = 1 << 20
)

// UploadImage 保存一张训练用自拍并返回公开地址，地址可直接放入训练请求的 urls。
func (h *HTTPHandler) UploadImage(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize+multipartReserve)
	header, err := c.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "La imagen no puede superar los 10 MB.")
			return
		}
		BadRequest(c, ErrCodeInvalidRequest, "Falta el archivo.")
		return
	}
	if header.Size > maxUploadSize {
		ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "La imagen no puede superar los 10 MB.")
		return
	}

	file, err := header.Open()
	if err != nil {
		logrus.WithError(err).Error("upload_open_failed")
		InternalError(c, "No se pudo leer el archivo.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		logrus.WithError(err).Error("upload_read_failed")
		InternalError(c, "No se pudo leer el archivo.")
		return
	}
	if len(data) > maxUploadSize {
		ErrorResponse(c, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "La imagen no puede superar los 10 MB.")
		return
	}

	mimeType := utils.NormalizeMime(http.DetectContentType(data))
	if !utils.IsImageMime(mimeType) {
		ErrorResponse(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "Solo se permiten imágenes.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	key, err := h.storage.Save(ctx, data, storage.SaveOptions{
		Category:    storage.CategoryUploads,
		Extension:   utils.ExtensionFromMime(mimeType),
		ContentType: mimeType,
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("upload_save_failed")
		InternalError(c, "No se pudo guardar la imagen.")
		return
	}

	url := h.resolver.Resolve(key)
	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"size":    len(data),
		"mime":    mimeType,
	}).Info("upload_saved")
	c.JSON(http.StatusCreated, entity.UploadResponse{URL: url})
}
