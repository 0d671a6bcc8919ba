package api

import (
	"context"
	"net/http"
	"time"

	"retratai/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *HTTPHandler) GetCredits(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "Se requiere autenticación.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	credits, err := h.repo.GetCredits(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("credits_load_failed")
		InternalError(c, "No se pudieron cargar los créditos.")
		return
	}

	c.JSON(http.StatusOK, entity.CreditBalanceResponse{
		Credits:             credits,
		MonetizationEnabled: h.cfg.MonetizationEnabled,
	})
}
