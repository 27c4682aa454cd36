package api

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/developer-mesh/style-guide-service/pkg/errors"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// respondError writes err as an ErrorResponse. Internal causes and reports
// are only shown outside production.
func (s *Server) respondError(c *gin.Context, err error) {
	class := apperrors.ClassOf(err)
	resp := ErrorResponse{Status: class.String(), Error: "internal server error"}

	if ce, ok := apperrors.As(err); ok {
		resp.Error = ce.Message
		resp.Details = ce.Details
		if resp.Details == nil && ce.Unwrap() != nil {
			resp.Details = ce.Unwrap().Error()
		}
	} else {
		resp.Details = err.Error()
	}

	if class == apperrors.ClassInternal {
		s.logger.Error("Request failed", map[string]any{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		if !s.exposeInternal {
			resp.Details = nil
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(class.HTTPStatus(), resp)
}

func (s *Server) badRequest(c *gin.Context, op, message string) {
	s.respondError(c, apperrors.NewValidationError(op, message))
}
