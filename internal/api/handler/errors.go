package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/dbferry/dbferry/internal/api/dto"
	"github.com/dbferry/dbferry/internal/core/service"
)

// respondError maps service error types onto HTTP status codes.
// Validation rejections are 400, rate limiting 429, unknown jobs 404,
// and unusable backups 409. Everything else is a 500.
func respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError

	var cfgErr *service.ConfigError
	var admErr *service.AdmissionError
	var notFoundErr *service.NotFoundError
	var integrityErr *service.IntegrityError

	switch {
	case errors.As(err, &cfgErr):
		code = http.StatusBadRequest
	case errors.As(err, &admErr):
		code = http.StatusTooManyRequests
	case errors.As(err, &notFoundErr):
		code = http.StatusNotFound
	case errors.As(err, &integrityErr):
		code = http.StatusConflict
	}

	c.JSON(code, dto.ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
		Code:    code,
	})
}
