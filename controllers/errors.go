package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/store"
)

// toAppError maps repository and store errors onto HTTP status codes. The
// repository message is what the client sees.
func toAppError(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	message := "Internal server error"
	var repoErr *repository.Error
	if errors.As(err, &repoErr) {
		message = repoErr.Msg
	}

	switch {
	case errors.Is(err, repository.ErrValidation),
		errors.Is(err, store.ErrInvalidPath):
		return apperrors.New(http.StatusBadRequest, message, err)
	case errors.Is(err, store.ErrUnknownBackend):
		return apperrors.New(http.StatusBadRequest, store.ErrUnknownBackend.Error(), err)
	case errors.Is(err, store.ErrNotFound):
		return apperrors.New(http.StatusNotFound, message, err)
	case errors.Is(err, store.ErrConflict):
		return apperrors.New(http.StatusConflict, message, err)
	case errors.Is(err, store.ErrUnavailable):
		return apperrors.New(http.StatusServiceUnavailable, message, err)
	}
	return apperrors.New(http.StatusInternalServerError, message, err)
}

// fail attaches err, translated to its HTTP status, for ErrorMiddleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
}
