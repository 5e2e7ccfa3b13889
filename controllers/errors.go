package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/storefront-checkout/services"
	"github.com/yeremiapane/storefront-checkout/utils"
)

// respondServiceError logs the full error and answers with a message that
// never includes raw gateway or database output.
func respondServiceError(c *gin.Context, err error, fields logrus.Fields) {
	code, message := describeError(err)

	entry := utils.ErrorLogger.WithFields(fields).WithField("path", c.FullPath()).WithError(err)
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	_ = c.Error(err)
	utils.RespondError(c, code, message)
}

func describeError(err error) (int, string) {
	var gwErr *services.GatewayError
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid signature"
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusInternalServerError, "payment service is not configured"
	case errors.Is(err, services.ErrGatewayTimeout):
		return http.StatusInternalServerError, "payment gateway timed out, please try again"
	case errors.As(err, &gwErr):
		return http.StatusInternalServerError, fmt.Sprintf("payment gateway rejected the request (status %d)", gwErr.StatusCode)
	case errors.Is(err, services.ErrGateway):
		return http.StatusInternalServerError, "payment gateway is unavailable, please try again"
	case errors.Is(err, services.ErrPersistence):
		return http.StatusInternalServerError, "your order could not be recorded"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
