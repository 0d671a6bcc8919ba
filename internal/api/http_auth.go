package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"retratai/internal/auth"
	"retratai/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Register 开放注册，同时按 SIGNUP_CREDITS 创建额度账户。
func (h *HTTPHandler) Register(c *gin.Context) {
	var req entity.AuthRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		BadRequest(c, ErrCodeValidation, "El correo y la contraseña son obligatorios.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.repo.GetUserByEmail(ctx, email); err == nil {
		ErrorResponse(c, http.StatusConflict, ErrCodeEmailExists, "El correo ya está registrado.")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).Error("register_lookup_failed")
		InternalError(c, "No se pudo completar el registro.")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			BadRequest(c, ErrCodeValidation, "La contraseña debe tener al menos 8 caracteres.")
			return
		}
		logrus.WithError(err).Error("password_hash_failed")
		InternalError(c, "No se pudo completar el registro.")
		return
	}

	user := &entity.DbUser{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		IsActive:     true,
	}
	if err := h.repo.CreateUser(ctx, user, h.cfg.SignupCredits); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			ErrorResponse(c, http.StatusConflict, ErrCodeEmailExists, "El correo ya está registrado.")
			return
		}
		logrus.WithError(err).Error("register_create_user_failed")
		InternalError(c, "No se pudo completar el registro.")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("token_generate_failed")
		InternalError(c, "No se pudo crear la sesión.")
		return
	}

	logrus.WithField("user_id", user.ID).Info("user_registered")
	c.JSON(http.StatusCreated, entity.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      makeUserSummary(user, h.cfg.SignupCredits),
	})
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req entity.AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		BadRequest(c, ErrCodeValidation, "El correo y la contraseña son obligatorios.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.repo.GetUserByEmail(ctx, email)
	if err != nil {
		logrus.WithError(err).WithField("email", email).Warn("login_failed")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Correo o contraseña incorrectos.")
		return
	}

	if !user.IsActive {
		ErrorResponse(c, http.StatusForbidden, ErrCodeUserDisabled, "La cuenta está deshabilitada.")
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		logrus.WithField("email", email).Warn("login_password_mismatch")
		ErrorResponse(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Correo o contraseña incorrectos.")
		return
	}

	token, expiresAt, err := h.authManager.GenerateToken(user)
	if err != nil {
		logrus.WithError(err).Error("token_generate_failed")
		InternalError(c, "No se pudo crear la sesión.")
		return
	}

	credits, err := h.repo.GetCredits(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("login_credits_load_failed")
	}

	c.JSON(http.StatusOK, entity.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      makeUserSummary(user, credits),
	})
}

func (h *HTTPHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbUser, err := h.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("profile_load_failed")
		InternalError(c, "No se pudo cargar el perfil.")
		return
	}
	credits, err := h.repo.GetCredits(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("credits_load_failed")
		InternalError(c, "No se pudo cargar el perfil.")
		return
	}

	c.JSON(http.StatusOK, makeUserSummary(dbUser, credits))
}

func makeUserSummary(user *entity.DbUser, credits int) entity.UserSummary {
	if user == nil {
		return entity.UserSummary{}
	}
	return entity.UserSummary{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Credits:     credits,
		CreatedAt:   user.CreatedAt,
	}
}
