package handler

import (
	"strings"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/gin-gonic/gin"
)

// GetPathParameter returns the named path parameter. An errdef.BadRequest error is added to c if
// it's blank.
func GetPathParameter(c *gin.Context, parameter string) (string, bool) {
	value := strings.TrimSpace(c.Param(parameter))
	if value == "" {
		_ = c.Error(errdef.NewBadRequest("path parameter %q is required", parameter))
		return "", false
	}
	return value, true
}
