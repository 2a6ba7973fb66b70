package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithError sends an error response. Errors outside the AppError
// taxonomy are reported as a generic internal error. err is attached to the
// context so the access log carries the cause.
func RespondWithError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	statusCode := http.StatusInternalServerError
	message := "internal server error"
	retryable := false

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.StatusCode()
		message = appErr.Message
		retryable = appErr.Retryable()
	}

	c.AbortWithStatusJSON(statusCode, Response{
		Status:    StatusError,
		Message:   message,
		Retryable: retryable,
	})
}
