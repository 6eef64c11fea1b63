package middleware

import (
	"fmt"
	"net/http"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error added to the gin context. Classified errors are rendered with
// their message, anything else with a generic message referencing the correlation id.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}
		if c.Writer.Written() {
			return
		}
		if c.Writer.Status() != http.StatusOK {
			_, _ = c.Writer.WriteString(err.Error())
			return
		}

		// nolint:gocritic
		if violations, ok := errdef.GetViolations(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"errors": violations})
		} else if errdef.IsBadRequest(err) {
			c.String(http.StatusBadRequest, err.Error())
		} else if errdef.IsUnauthorized(err) {
			c.String(http.StatusUnauthorized, err.Error())
		} else if errdef.IsForbidden(err) {
			c.String(http.StatusForbidden, err.Error())
		} else if errdef.IsNotFound(err) {
			c.String(http.StatusNotFound, err.Error())
		} else if errdef.IsDuplicated(err) {
			c.String(http.StatusConflict, err.Error())
		} else if errdef.IsConflict(err) {
			c.String(http.StatusConflict, err.Error())
		} else if errdef.IsUnsupportedMediaType(err) {
			c.String(http.StatusUnsupportedMediaType, err.Error())
		} else if errdef.IsUnavailable(err) {
			id, _ := GetCorrelationID(c.Request.Context())
			err := fmt.Errorf("%v. Please try again later and send us the id %q if the problem persists", err.Error(), id)
			c.String(http.StatusServiceUnavailable, err.Error())
		} else {
			id, _ := GetCorrelationID(c.Request.Context())
			err := fmt.Errorf("something went wrong. We'll look into it if you send us the id %q :)", id)
			c.String(http.StatusInternalServerError, err.Error())
		}
	}
}
