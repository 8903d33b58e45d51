package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/middleware"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

// actorFromContext returns the caller or writes 401 and reports false.
func actorFromContext(c *gin.Context) (dto.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return dto.Actor{}, false
	}
	return actor, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func invalidPayload(err error, what string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+what+" payload")
}
