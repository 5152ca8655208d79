package tool

import (
	"github.com/gin-gonic/gin"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

// FastReturnStatus answers health/info style endpoints.
func FastReturnStatus(status string) gin.H {
	return gin.H{
		"status": status,
	}
}
