package tool

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlyAllowLocal restricts an endpoint to loopback clients. The notify hub
// serves local UIs only.
func OnlyAllowLocal(c *gin.Context) {
	if c.ClientIP() == "127.0.0.1" || c.ClientIP() == "::1" {
		c.Next()
	} else {
		c.JSON(http.StatusForbidden, FastReturnError("Forbidden"))
	}
}

// AllowAllCORS opens the sandbox backend to browser clients during local
// development.
func AllowAllCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
