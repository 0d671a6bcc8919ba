package service

import (
	"errors"
	"fmt"
)

// Kind 区分业务错误的类别，HTTP 层据此映射状态码。
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindInsufficientCredits
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindInsufficientCredits:
		return "insufficient_credits"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error 是带用户可见消息的业务错误。Err 保存内部原因，仅用于日志。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// IsKind reports whether err is a service error of kind k.
func IsKind(err error, k Kind) bool {
	svcErr, ok := AsError(err)
	return ok && svcErr.Kind == k
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func unauthorizedError(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func notFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func upstreamError(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// 面向用户的消息
const (
	MsgTooFewImages        = "Sube al menos 4 imágenes."
	MsgNameRequired        = "El nombre es obligatorio."
	MsgNameTooLong         = "El nombre no puede superar los 50 caracteres."
	MsgNameInvalid         = "El nombre solo puede contener letras y espacios."
	MsgInvalidGender       = "El tipo debe ser man o woman."
	MsgInsufficientCredits = "No tienes suficientes créditos. Por favor adquiere créditos y vuelve a intentarlo."
	MsgTrainingFailed      = "No se pudo iniciar el entrenamiento. Inténtalo de nuevo."
	MsgTrainingSubmitted   = "Modelo enviado a entrenamiento."
	MsgMalformedWebhook    = "URL mal formada. Faltan parámetros."
	MsgUnauthorized        = "No autorizado."
	MsgMissingVersion      = "La respuesta del entrenamiento no incluye la versión del modelo."
	MsgWebhookFailed       = "No se pudo actualizar el modelo."
	MsgWebhookOK           = "OK"
	MsgMissingModelID      = "Faltan parámetros: modelId."
	MsgModelNotFound       = "Modelo no encontrado"
	MsgAlreadyGenerated    = "Las imágenes ya se generaron anteriormente para este modelo."
	MsgModelNotReady       = "El modelo no está terminado de entrenar."
	MsgNoImagesGenerated   = "No se pudieron generar imágenes. Inténtalo de nuevo."
	MsgImagesSaveFailed    = "Error guardando imágenes en la BD."
	MsgImagesGenerated     = "Imágenes generadas y guardadas exitosamente."
)
