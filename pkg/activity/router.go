package activity

import (
	"github.com/gin-gonic/gin"
)

type AuthenticationMiddleware interface {
	TokenAuthentication(context *gin.Context)
}

func Routes(r gin.IRouter, authenticationMiddleware AuthenticationMiddleware, handler Handler) {
	tokenAuthenticationRouter := r.Group("/activities")
	tokenAuthenticationRouter.Use(authenticationMiddleware.TokenAuthentication)
	tokenAuthenticationRouter.GET("", handler.List)
	tokenAuthenticationRouter.POST("", handler.Create)
	tokenAuthenticationRouter.GET("/:id", handler.Find)
	tokenAuthenticationRouter.PUT("/:id", handler.Update)
	tokenAuthenticationRouter.DELETE("/:id", handler.Delete)
	tokenAuthenticationRouter.POST("/:id/attend", handler.Attend)
	tokenAuthenticationRouter.PUT("/:id/host", handler.TransferHost)
}
