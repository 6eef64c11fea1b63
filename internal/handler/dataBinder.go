package handler

import (
	"fmt"

	"github.com/dhis2-sre/im-activities/internal/errdef"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// DataBinder binds the JSON request body into req. Validation is left to the request pipeline so
// every violation is reported, not just the first binding error.
func DataBinder(c *gin.Context, req any) error {
	if c.ContentType() != "application/json" {
		reason := fmt.Sprintf("%s only accepts content of type application/json", c.FullPath())
		return errdef.NewUnsupportedMediaType(reason)
	}

	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		return errdef.NewBadRequest("error binding data: %v", err)
	}

	return nil
}
