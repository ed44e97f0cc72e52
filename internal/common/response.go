package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes data as the whole JSON body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail aborts the request with an {"error": msg} body.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{"error": msg})
}
