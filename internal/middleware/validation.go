package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-api/pkg/httputil"
	pkgvalidator "github.com/jwalitptl/clinic-api/pkg/validator"
)

// ValidationResponse is the body of a 400 produced by request binding.
type ValidationResponse struct {
	Status  string                    `json:"status"`
	Message string                    `json:"message"`
	Errors  []pkgvalidator.FieldError `json:"errors,omitempty"`
}

var registerOnce sync.Once

// Validation installs the clinic rules on gin's binding engine and renders
// binding failures that handlers report through AbortWithBindError.
func Validation() gin.HandlerFunc {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := pkgvalidator.Register(v); err != nil {
				panic(err)
			}
		}
	})

	return func(c *gin.Context) {
		c.Next()

		bindErrs := c.Errors.ByType(gin.ErrorTypeBind)
		if len(bindErrs) == 0 || c.Writer.Written() {
			return
		}

		err := bindErrs.Last().Err
		c.AbortWithStatusJSON(http.StatusBadRequest, ValidationResponse{
			Status:  httputil.StatusError,
			Message: pkgvalidator.Describe(err),
			Errors:  pkgvalidator.Fields(err),
		})
	}
}

// AbortWithBindError stops the chain and leaves err for Validation to render.
func AbortWithBindError(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
	c.Abort()
}
