package api

import (
	"net/http"

	"retratai/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "ERR_EMAIL_EXISTS"
	ErrCodeUserDisabled       = "ERR_USER_DISABLED"
	ErrCodeUserNotFound       = "ERR_USER_NOT_FOUND"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"

	// 业务错误码
	ErrCodeInsufficientCredits = "ERR_INSUFFICIENT_CREDITS"
	ErrCodeModelNotFound       = "ERR_MODEL_NOT_FOUND"
	ErrCodeUpstream            = "ERR_UPSTREAM"
	ErrCodeFileTooLarge        = "ERR_FILE_TOO_LARGE"
	ErrCodeUnsupportedMedia    = "ERR_UNSUPPORTED_MEDIA"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "Solicitud inválida.")
}

// statusForKind 将业务错误类别映射为 HTTP 状态码与错误码。
func statusForKind(kind service.Kind) (int, string) {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case service.KindUnauthorized:
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case service.KindInsufficientCredits:
		return http.StatusPaymentRequired, ErrCodeInsufficientCredits
	case service.KindNotFound:
		return http.StatusNotFound, ErrCodeModelNotFound
	case service.KindUpstream:
		return http.StatusInternalServerError, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// WriteServiceError 将服务层错误写为 APIError。
// 非 service.Error 一律视为内部错误，原因只记录日志。
func WriteServiceError(c *gin.Context, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("unhandled_service_error")
		InternalError(c, "Error interno del servidor.")
		return
	}
	status, code := statusForKind(svcErr.Kind)
	if svcErr.Err != nil {
		logrus.WithError(svcErr.Err).WithFields(logrus.Fields{
			"kind": svcErr.Kind.String(),
			"path": c.FullPath(),
		}).Warn("service_error")
	}
	ErrorResponse(c, status, code, svcErr.Message)
}
